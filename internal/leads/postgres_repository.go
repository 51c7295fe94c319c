package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var leadsTracer = otel.Tracer("outreach.leads")

type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
// Version is a column bumped on every update.
type PostgresRepository struct {
	db pgxDB
}

var _ Store = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const selectLeadColumns = `
	SELECT id, name, email, company, domain, role, headline, company_background, status, version
	FROM outreach_leads
`

// FetchLeads loads every lead in sheet order with its history.
func (r *PostgresRepository) FetchLeads(ctx context.Context) ([]Lead, error) {
	ctx, span := leadsTracer.Start(ctx, "leads.postgres.fetch")
	defer span.End()

	rows, err := r.db.Query(ctx, selectLeadColumns+` ORDER BY position`)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("fetch", "", fmt.Errorf("select leads: %w", err))
	}
	leads, err := scanLeads(rows)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("fetch", "", err)
	}

	historyRows, err := r.db.Query(ctx, `
		SELECT lead_id, kind, direction, subject, body, mode, stage, error, occurred_at
		FROM outreach_lead_history
		ORDER BY id
	`)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("fetch", "", fmt.Errorf("select history: %w", err))
	}
	history, err := scanHistory(historyRows)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("fetch", "", err)
	}
	for i := range leads {
		leads[i].History = history[leads[i].ID]
	}
	span.SetAttributes(attribute.Int("leads.count", len(leads)))
	return leads, nil
}

// GetLead loads a single lead with its history.
func (r *PostgresRepository) GetLead(ctx context.Context, id string) (Lead, error) {
	ctx, span := leadsTracer.Start(ctx, "leads.postgres.get", trace.WithAttributes(attribute.String("lead.id", id)))
	defer span.End()

	rows, err := r.db.Query(ctx, selectLeadColumns+` WHERE id = $1`, id)
	if err != nil {
		return Lead{}, storeErr("get", id, fmt.Errorf("select lead: %w", err))
	}
	leads, err := scanLeads(rows)
	if err != nil {
		return Lead{}, storeErr("get", id, err)
	}
	if len(leads) == 0 {
		return Lead{}, storeErr("get", id, ErrLeadNotFound)
	}

	historyRows, err := r.db.Query(ctx, `
		SELECT lead_id, kind, direction, subject, body, mode, stage, error, occurred_at
		FROM outreach_lead_history
		WHERE lead_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return Lead{}, storeErr("get", id, fmt.Errorf("select history: %w", err))
	}
	history, err := scanHistory(historyRows)
	if err != nil {
		return Lead{}, storeErr("get", id, err)
	}
	lead := leads[0]
	lead.History = history[id]
	return lead, nil
}

// UpdateLead bumps the version and appends history in one transaction.
func (r *PostgresRepository) UpdateLead(ctx context.Context, update LeadUpdate) error {
	if err := update.Validate(); err != nil {
		return storeErr("update", update.ID, err)
	}
	ctx, span := leadsTracer.Start(ctx, "leads.postgres.update", trace.WithAttributes(
		attribute.String("lead.id", update.ID),
		attribute.String("lead.status", string(update.Status)),
	))
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return storeErr("update", update.ID, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE outreach_leads
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, string(update.Status), update.ID, update.ExpectedVersion)
	if err != nil {
		span.RecordError(err)
		return storeErr("update", update.ID, fmt.Errorf("update status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM outreach_leads WHERE id = $1`, update.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return storeErr("update", update.ID, ErrLeadNotFound)
		}
		if err != nil {
			return storeErr("update", update.ID, fmt.Errorf("check lead: %w", err))
		}
		return storeErr("update", update.ID, ErrWriteConflict)
	}

	for _, entry := range update.Append {
		at := entry.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO outreach_lead_history (lead_id, kind, direction, subject, body, mode, stage, error, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, update.ID, string(entry.Kind), string(entry.Direction), entry.Subject, entry.Text,
			string(entry.Mode), entry.Stage, entry.Error, at); err != nil {
			span.RecordError(err)
			return storeErr("update", update.ID, fmt.Errorf("append history: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return storeErr("update", update.ID, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func scanLeads(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()
	var out []Lead
	for rows.Next() {
		var (
			lead   Lead
			status string
		)
		if err := rows.Scan(
			&lead.ID,
			&lead.Identity.Name,
			&lead.Identity.Email,
			&lead.Identity.Company,
			&lead.Identity.Domain,
			&lead.Identity.Role,
			&lead.Identity.Headline,
			&lead.CompanyBackground,
			&status,
			&lead.Version,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("lead %s: %w", lead.ID, err)
		}
		lead.Status = parsed
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func scanHistory(rows pgx.Rows) (map[string][]HistoryEntry, error) {
	defer rows.Close()
	out := make(map[string][]HistoryEntry)
	for rows.Next() {
		var (
			leadID                string
			kind, direction, mode string
			entry                 HistoryEntry
		)
		if err := rows.Scan(&leadID, &kind, &direction, &entry.Subject, &entry.Text, &mode, &entry.Stage, &entry.Error, &entry.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Kind = EntryKind(kind)
		entry.Direction = Direction(direction)
		entry.Mode = Mode(mode)
		out[leadID] = append(out[leadID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
