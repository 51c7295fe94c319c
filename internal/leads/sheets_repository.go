package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Sheet column headers, matched case-insensitively.
const (
	ColumnLeadID            = "Lead ID"
	ColumnName              = "Name"
	ColumnEmail             = "Email"
	ColumnCompany           = "Company Name"
	ColumnDomain            = "Company Domain"
	ColumnRole              = "Role"
	ColumnHeadline          = "Headline"
	ColumnCompanyBackground = "Company Background"
	ColumnStatus            = "Email Status"
	ColumnHistory           = "Conversation History"
	ColumnSubject           = "Cold Email Subject"
	ColumnLastMessage       = "Last Message"
	ColumnLastSender        = "Last Sender"
)

var requiredColumns = []string{ColumnName, ColumnEmail, ColumnCompany, ColumnStatus, ColumnHistory}

// ValuesAPI is the slice of the Sheets values service the repository needs.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error
}

type sheetsValues struct {
	svc *sheets.SpreadsheetsValuesService
}

// NewSheetsValues adapts a Sheets service for SheetsRepository.
func NewSheetsValues(svc *sheets.Service) ValuesAPI {
	if svc == nil {
		panic("leads: sheets service required")
	}
	return &sheetsValues{svc: svc.Spreadsheets.Values}
}

func (s *sheetsValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := s.svc.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *sheetsValues) BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error {
	_, err := s.svc.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

// SheetsRepository stores one lead per worksheet row. The conversation history
// cell holds a JSON array and the lead version is the number of history entries.
//
// Writes re-read the row and compare versions before updating, so conflicting
// writers from this process fail with ErrWriteConflict. Writers in other
// processes are only detected when their update lands before the re-read.
type SheetsRepository struct {
	values        ValuesAPI
	spreadsheetID string
	worksheet     string
	logger        *logging.Logger
	onInvalidRow  func(row int, err error)

	mu sync.Mutex
}

var _ Store = (*SheetsRepository)(nil)

// NewSheetsRepository wires a repository to one worksheet of a spreadsheet.
func NewSheetsRepository(values ValuesAPI, spreadsheetID, worksheet string) *SheetsRepository {
	if values == nil {
		panic("leads: sheets values api required")
	}
	if strings.TrimSpace(worksheet) == "" {
		worksheet = "Leads"
	}
	return &SheetsRepository{
		values:        values,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		logger:        logging.Default(),
	}
}

// WithLogger sets the logger used to report rows that cannot be decoded.
func (r *SheetsRepository) WithLogger(logger *logging.Logger) *SheetsRepository {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithInvalidRowHook registers a callback for every row skipped because it
// could not be decoded.
func (r *SheetsRepository) WithInvalidRowHook(fn func(row int, err error)) *SheetsRepository {
	r.onInvalidRow = fn
	return r
}

type sheetLayout struct {
	columns map[string]int
}

func (l sheetLayout) index(name string) (int, bool) {
	idx, ok := l.columns[strings.ToLower(name)]
	return idx, ok
}

func (l sheetLayout) cell(row []any, name string) string {
	idx, ok := l.index(name)
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

func parseLayout(header []any) (sheetLayout, error) {
	layout := sheetLayout{columns: make(map[string]int, len(header))}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(raw)))
		if name == "" {
			continue
		}
		if _, dup := layout.columns[name]; !dup {
			layout.columns[name] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := layout.index(col); !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return sheetLayout{}, fmt.Errorf("worksheet missing required columns: %s", strings.Join(missing, ", "))
	}
	return layout, nil
}

type sheetRow struct {
	number int // 1-based sheet row
	lead   Lead
}

// load reads the worksheet. Rows that fail to decode are skipped and reported
// so one bad cell never hides the rest of the sheet; only a failed read or a
// bad header row is an error.
func (r *SheetsRepository) load(ctx context.Context) (sheetLayout, []sheetRow, error) {
	values, err := r.values.Get(ctx, r.spreadsheetID, quoteSheet(r.worksheet))
	if err != nil {
		return sheetLayout{}, nil, fmt.Errorf("read worksheet %s: %w", r.worksheet, err)
	}
	if len(values) == 0 {
		return sheetLayout{}, nil, fmt.Errorf("worksheet %s has no header row", r.worksheet)
	}
	layout, err := parseLayout(values[0])
	if err != nil {
		return sheetLayout{}, nil, err
	}

	rows := make([]sheetRow, 0, len(values)-1)
	for i, raw := range values[1:] {
		number := i + 2
		if layout.cell(raw, ColumnEmail) == "" && layout.cell(raw, ColumnName) == "" {
			continue
		}
		lead, err := layout.decode(raw, number)
		if err != nil {
			r.skipRow(ctx, number, err)
			continue
		}
		rows = append(rows, sheetRow{number: number, lead: lead})
	}
	return layout, rows, nil
}

func (r *SheetsRepository) skipRow(ctx context.Context, number int, err error) {
	trace.SpanFromContext(ctx).AddEvent("leads.sheets.invalid_row", trace.WithAttributes(
		attribute.Int("row", number),
		attribute.String("error", err.Error()),
	))
	r.logger.Warn("skipping invalid lead row", "worksheet", r.worksheet, "row", number, "error", err)
	if r.onInvalidRow != nil {
		r.onInvalidRow(number, err)
	}
}

func (l sheetLayout) decode(row []any, number int) (Lead, error) {
	status, err := ParseStatus(l.cell(row, ColumnStatus))
	if err != nil {
		return Lead{}, err
	}
	lead := Lead{
		Identity: Identity{
			Name:     l.cell(row, ColumnName),
			Email:    l.cell(row, ColumnEmail),
			Company:  l.cell(row, ColumnCompany),
			Domain:   l.cell(row, ColumnDomain),
			Role:     l.cell(row, ColumnRole),
			Headline: l.cell(row, ColumnHeadline),
		},
		CompanyBackground: l.cell(row, ColumnCompanyBackground),
		Status:            status,
	}
	lead.ID = l.cell(row, ColumnLeadID)
	if lead.ID == "" {
		lead.ID = rowKey(lead.Identity.Email, number)
	}
	lead.History, err = decodeHistory(l.cell(row, ColumnHistory), status)
	if err != nil {
		return Lead{}, err
	}
	lead.Version = int64(len(lead.History))
	return lead, nil
}

func rowKey(email string, number int) string {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return email
	}
	return fmt.Sprintf("row-%d", number)
}

// decodeHistory reads the JSON history cell. Free-text history written by older
// tooling becomes a single message, inbound when the lead is waiting on a reply.
func decodeHistory(cell string, status Status) ([]HistoryEntry, error) {
	if cell == "" {
		return nil, nil
	}
	if strings.HasPrefix(cell, "[") {
		var entries []HistoryEntry
		if err := json.Unmarshal([]byte(cell), &entries); err != nil {
			return nil, fmt.Errorf("decode conversation history: %w", err)
		}
		return entries, nil
	}
	direction := DirectionOutbound
	if status == StatusReplied {
		direction = DirectionInbound
	}
	return []HistoryEntry{{Kind: KindMessage, Direction: direction, Text: cell}}, nil
}

// FetchLeads reads the whole worksheet in row order.
func (r *SheetsRepository) FetchLeads(ctx context.Context) ([]Lead, error) {
	ctx, span := leadsTracer.Start(ctx, "leads.sheets.fetch")
	defer span.End()

	_, rows, err := r.load(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("fetch", "", err)
	}
	out := make([]Lead, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.lead)
	}
	span.SetAttributes(attribute.Int("leads.count", len(out)))
	return out, nil
}

// GetLead reads the worksheet and returns the matching row.
func (r *SheetsRepository) GetLead(ctx context.Context, id string) (Lead, error) {
	_, rows, err := r.load(ctx)
	if err != nil {
		return Lead{}, storeErr("get", id, err)
	}
	for _, row := range rows {
		if row.lead.ID == id {
			return row.lead, nil
		}
	}
	return Lead{}, storeErr("get", id, ErrLeadNotFound)
}

// UpdateLead writes status and history cells for the lead's row.
func (r *SheetsRepository) UpdateLead(ctx context.Context, update LeadUpdate) error {
	if err := update.Validate(); err != nil {
		return storeErr("update", update.ID, err)
	}
	ctx, span := leadsTracer.Start(ctx, "leads.sheets.update", trace.WithAttributes(
		attribute.String("lead.id", update.ID),
		attribute.String("lead.status", string(update.Status)),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	layout, rows, err := r.load(ctx)
	if err != nil {
		span.RecordError(err)
		return storeErr("update", update.ID, err)
	}
	var target *sheetRow
	for i := range rows {
		if rows[i].lead.ID == update.ID {
			target = &rows[i]
			break
		}
	}
	if target == nil {
		return storeErr("update", update.ID, ErrLeadNotFound)
	}
	if target.lead.Version != update.ExpectedVersion {
		return storeErr("update", update.ID, ErrWriteConflict)
	}

	next := target.lead.apply(update)
	historyJSON, err := json.Marshal(next.History)
	if err != nil {
		return storeErr("update", update.ID, fmt.Errorf("encode conversation history: %w", err))
	}

	cells := map[string]string{
		ColumnStatus:  string(next.Status),
		ColumnHistory: string(historyJSON),
	}
	if subject := next.ThreadSubject(); subject != "" {
		cells[ColumnSubject] = subject
	}
	if last, ok := next.LastMessage(); ok {
		cells[ColumnLastMessage] = last.Text
		cells[ColumnLastSender] = string(last.Direction)
	}

	data := make([]*sheets.ValueRange, 0, len(cells))
	for column, value := range cells {
		idx, ok := layout.index(column)
		if !ok {
			continue
		}
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", quoteSheet(r.worksheet), columnLetter(idx), target.number),
			Values: [][]any{{value}},
		})
	}
	if err := r.values.BatchUpdate(ctx, r.spreadsheetID, data); err != nil {
		span.RecordError(err)
		return storeErr("update", update.ID, fmt.Errorf("write row %d: %w", target.number, err))
	}
	return nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnLetter converts a zero-based column index to A1 notation.
func columnLetter(idx int) string {
	letters := ""
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		letters = string(rune('A'+(n-1)%26)) + letters
	}
	return letters
}
