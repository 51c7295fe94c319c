// Package cycles keeps a ledger of completed outreach cycles in DynamoDB and
// archives full cycle reports to S3.
package cycles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

const defaultRecordTTL = 90 * 24 * time.Hour

// ErrCycleNotFound indicates the requested cycle id is not in the ledger.
var ErrCycleNotFound = errors.New("cycles: cycle not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// OutcomeRecord is the ledger's compact view of one lead outcome.
type OutcomeRecord struct {
	LeadID    string `dynamodbav:"leadId" json:"leadId"`
	Result    string `dynamodbav:"result" json:"result"`
	Action    string `dynamodbav:"action" json:"action"`
	From      string `dynamodbav:"from" json:"from"`
	To        string `dynamodbav:"to" json:"to"`
	Reason    string `dynamodbav:"reason,omitempty" json:"reason,omitempty"`
	ErrorKind string `dynamodbav:"errorKind,omitempty" json:"errorKind,omitempty"`
}

// CycleRecord is one ledger row.
type CycleRecord struct {
	CycleID    string          `dynamodbav:"cycleId" json:"cycleId"`
	Trigger    string          `dynamodbav:"trigger" json:"trigger"`
	StartedAt  string          `dynamodbav:"startedAt" json:"startedAt"`
	FinishedAt string          `dynamodbav:"finishedAt" json:"finishedAt"`
	DurationMS int64           `dynamodbav:"durationMs" json:"durationMs"`
	Applied    int             `dynamodbav:"applied" json:"applied"`
	Skipped    int             `dynamodbav:"skipped" json:"skipped"`
	Failed     int             `dynamodbav:"failed" json:"failed"`
	Reconciled int             `dynamodbav:"reconciled" json:"reconciled"`
	Outcomes   []OutcomeRecord `dynamodbav:"outcomes,omitempty" json:"outcomes,omitempty"`
	ExpiresAt  int64           `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// NewCycleRecord flattens a report for the ledger.
func NewCycleRecord(report outreach.Report) CycleRecord {
	rec := CycleRecord{
		CycleID:    report.CycleID,
		Trigger:    report.Trigger,
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: report.FinishedAt.UTC().Format(time.RFC3339Nano),
		DurationMS: report.Duration().Milliseconds(),
		Applied:    report.Applied,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Reconciled: report.Reconciled,
	}
	for _, o := range report.Outcomes {
		rec.Outcomes = append(rec.Outcomes, OutcomeRecord{
			LeadID:    o.LeadID,
			Result:    string(o.Result),
			Action:    string(o.Action),
			From:      string(o.From),
			To:        string(o.To),
			Reason:    o.Reason,
			ErrorKind: o.ErrorKind,
		})
	}
	return rec
}

// DynamoRecorder writes cycle records to a DynamoDB table keyed by cycleId.
type DynamoRecorder struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
}

var _ outreach.Recorder = (*DynamoRecorder)(nil)

func NewDynamoRecorder(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRecorder {
	if client == nil {
		panic("cycles: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("cycles: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRecorder{client: client, tableName: tableName, ttl: defaultRecordTTL, logger: logger}
}

func (r *DynamoRecorder) RecordCycle(ctx context.Context, report outreach.Report) error {
	rec := NewCycleRecord(report)
	rec.ExpiresAt = report.FinishedAt.Add(r.ttl).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("cycles: marshal record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(cycleId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			r.logger.Warn("cycle already recorded", "cycle_id", report.CycleID)
			return nil
		}
		return fmt.Errorf("cycles: put record: %w", err)
	}
	return nil
}

// GetCycle loads a ledger row.
func (r *DynamoRecorder) GetCycle(ctx context.Context, cycleID string) (*CycleRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            map[string]types.AttributeValue{"cycleId": &types.AttributeValueMemberS{Value: cycleID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("cycles: get record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrCycleNotFound
	}
	var rec CycleRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("cycles: unmarshal record: %w", err)
	}
	return &rec, nil
}
