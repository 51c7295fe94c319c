package cycles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by S3Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	CycleID    string `json:"cycle_id"`
	S3Key      string `json:"s3_key"`
	Trigger    string `json:"trigger"`
	FinishedAt string `json:"finished_at"`
	Applied    int    `json:"applied"`
	Failed     int    `json:"failed"`
}

// S3Archiver stores full cycle reports as JSON objects. With no bucket
// configured every call is a no-op.
type S3Archiver struct {
	bucket string
	client S3API
	logger *logging.Logger
}

var _ outreach.Recorder = (*S3Archiver)(nil)

func NewS3Archiver(client S3API, bucket string, logger *logging.Logger) *S3Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Archiver{bucket: bucket, client: client, logger: logger}
}

func (a *S3Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

func ReportKey(report outreach.Report) string {
	at := report.StartedAt.UTC()
	return fmt.Sprintf("cycles/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), report.CycleID)
}

func (a *S3Archiver) RecordCycle(ctx context.Context, report outreach.Report) error {
	if !a.Enabled() {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("cycles: marshal report: %w", err)
	}

	key := ReportKey(report)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("cycles: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived cycle report", "cycle_id", report.CycleID, "s3_key", key, "outcomes", len(report.Outcomes))

	entry := ManifestEntry{
		CycleID:    report.CycleID,
		S3Key:      key,
		Trigger:    report.Trigger,
		FinishedAt: report.FinishedAt.UTC().Format(time.RFC3339),
		Applied:    report.Applied,
		Failed:     report.Failed,
	}
	if err := a.appendManifest(ctx, report.StartedAt.UTC(), entry); err != nil {
		// The report itself is archived; the manifest is an index.
		a.logger.Warn("failed to append cycle manifest", "error", err, "cycle_id", report.CycleID)
	}
	return nil
}

// appendManifest is read-modify-write since S3 has no append. Concurrent
// cycles are excluded by the cycle lock.
func (a *S3Archiver) appendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cycles: marshal manifest entry: %w", err)
	}
	key := fmt.Sprintf("cycles/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	switch {
	case err == nil:
		existing, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("cycles: read manifest: %w", err)
		}
	case isNoSuchKey(err):
	default:
		return fmt.Errorf("cycles: get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("cycles: s3 put manifest: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
