package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/outreach-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/outreach-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/trigger"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

type handler struct {
	runner  outreach.CycleRunner
	checker inbox.ReplyChecker
	logger  *logging.Logger
}

// scheduledDetail is the EventBridge rule input, e.g. {"kind":"check_replies"}.
type scheduledDetail struct {
	Kind trigger.Kind `json:"kind"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	rt, err := bootstrap.Build(ctx, cfg, awsCfg, logger, bootstrap.Options{Registerer: mainconfig.NewRegistry()})
	if err != nil {
		logger.Error("failed to build outreach runtime", "error", err)
		os.Exit(1)
	}

	h := &handler{runner: rt.Dispatcher, checker: rt.Monitor, logger: logger}
	lambda.Start(h.handle)
}

// handle accepts either an SQS batch of trigger payloads or a scheduled
// EventBridge event.
func (h *handler) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var probe struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && len(probe.Records) > 0 {
		var evt events.SQSEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("decode sqs event: %w", err)
		}
		return h.handleSQS(ctx, evt), nil
	}

	var evt events.CloudWatchEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode scheduled event: %w", err)
	}
	detail := scheduledDetail{Kind: trigger.KindRunCycle}
	if len(evt.Detail) > 0 {
		if err := json.Unmarshal(evt.Detail, &detail); err != nil {
			return nil, fmt.Errorf("decode event detail: %w", err)
		}
	}
	return nil, h.run(ctx, detail.Kind, "schedule")
}

func (h *handler) handleSQS(ctx context.Context, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		payload, err := trigger.DecodePayload(record.Body)
		if err != nil {
			h.logger.Error("dropping malformed trigger", "error", err, "message_id", record.MessageId)
			continue
		}
		if err := h.run(ctx, payload.Kind, "sqs"); err != nil {
			h.logger.Error("trigger failed", "error", err, "trigger_id", payload.ID)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}

func (h *handler) run(ctx context.Context, kind trigger.Kind, source string) error {
	switch kind {
	case trigger.KindRunCycle:
		report, err := h.runner.RunCycle(ctx, "lambda:"+source)
		if errors.Is(err, outreach.ErrCycleInProgress) {
			h.logger.Info("cycle skipped: already running")
			return nil
		}
		if err != nil {
			return err
		}
		h.logger.Info("cycle finished", "cycle_id", report.CycleID, "applied", report.Applied, "failed", report.Failed)
		return nil
	case trigger.KindCheckReplies:
		report, err := h.checker.CheckReplies(ctx)
		if err != nil {
			return err
		}
		h.logger.Info("reply check finished", "recorded", report.Recorded)
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %q", kind)
	}
}
