package outreach

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

// Skip reasons reported on outcomes.
const (
	ReasonNoActionDue     = "no action due"
	ReasonRetryExhausted  = "retry budget exhausted"
	ReasonSendPending     = "send awaiting store reconciliation"
	ReasonLeadLocked      = "lead locked by another writer"
	ReasonStoreDeferred   = "sent; store write deferred to journal"
	ReasonSendUnrecorded  = "sent; store write and journal failed"
	ReasonWriteConflict   = "lead changed during cycle"
	ReasonFailureRecorded = "failure recorded"
)

// Plan is the side-effect free part of a routing decision.
type Plan struct {
	Action Action
	// Mode is the generation mode to invoke; for RETRY it is the mode that failed.
	Mode leads.Mode
	// NextStatus is the status committed after a successful send.
	NextStatus leads.Status
	Reason     string
	// Exhausted marks FAILED leads left for manual handling.
	Exhausted bool
	Attempt   int
}

// Skip reports whether the plan needs no generator call.
func (p Plan) Skip() bool { return p.Action == ActionSkip }

// Decision is a plan with its generated content, or the generation failure.
type Decision struct {
	Plan
	Content Content
	// Err is a *GenerationError when NextStatus is FAILED.
	Err error
}

// targetStatus maps a generation mode onto the status reached once its message is sent.
func targetStatus(mode leads.Mode) leads.Status {
	if mode == leads.ModeReply {
		return leads.StatusResponded
	}
	return leads.StatusAwaitingReply
}

// Classify applies the routing rules in priority order; the first match wins.
func Classify(lead leads.Lead, policy Policy) Plan {
	switch {
	case lead.Status == leads.StatusFailed:
		attempts := lead.FailedAttempts()
		if attempts >= policy.MaxAttempts {
			return Plan{Action: ActionSkip, Reason: ReasonRetryExhausted, Exhausted: true, Attempt: attempts}
		}
		mode := retriedMode(lead)
		return Plan{Action: ActionRetry, Mode: mode, NextStatus: targetStatus(mode), Attempt: attempts + 1}
	case lead.Status == leads.StatusNew:
		return Plan{Action: ActionColdOpen, Mode: leads.ModeColdOpen, NextStatus: leads.StatusAwaitingReply, Attempt: 1}
	case lead.Status == leads.StatusReplied:
		return Plan{Action: ActionReply, Mode: leads.ModeReply, NextStatus: leads.StatusResponded, Attempt: 1}
	case policy.ReplyDetection == ReplyDetectionHistory && hasUnansweredInbound(lead):
		return Plan{Action: ActionReply, Mode: leads.ModeReply, NextStatus: leads.StatusResponded, Attempt: 1}
	default:
		return Plan{Action: ActionSkip, Reason: ReasonNoActionDue}
	}
}

// retriedMode recovers the mode of the failed action: the failure marker's mode
// when recorded, otherwise cold open until a message has been sent.
func retriedMode(lead leads.Lead) leads.Mode {
	if failure, ok := lead.LastFailure(); ok && failure.Mode != "" {
		return failure.Mode
	}
	if lead.HasOutbound() {
		return leads.ModeReply
	}
	return leads.ModeColdOpen
}

func hasUnansweredInbound(lead leads.Lead) bool {
	if lead.Status != leads.StatusAwaitingReply && lead.Status != leads.StatusResponded {
		return false
	}
	last, ok := lead.LastMessage()
	return ok && last.Direction == leads.DirectionInbound
}

// Router turns a lead into a Decision by classifying it and invoking the
// matching generator mode. It never touches the store and never retries.
type Router struct {
	generator ContentGenerator
	briefing  BriefingSource
	policy    Policy
}

// NewRouter validates the policy. A nil briefing source falls back to the
// background stored on the lead and an empty portfolio.
func NewRouter(generator ContentGenerator, briefing BriefingSource, policy Policy) (*Router, error) {
	if generator == nil {
		panic("outreach: content generator required")
	}
	if policy.ReplyDetection == "" {
		policy.ReplyDetection = ReplyDetectionStatus
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Router{generator: generator, briefing: briefing, policy: policy}, nil
}

// Policy returns the router's effective policy.
func (r *Router) Policy() Policy { return r.policy }

// Classify runs the pure routing step with the router's policy.
func (r *Router) Classify(lead leads.Lead) Plan {
	return Classify(lead, r.policy)
}

// Route classifies the lead and generates content when an action is due.
func (r *Router) Route(ctx context.Context, lead leads.Lead) Decision {
	return r.Generate(ctx, lead, r.Classify(lead))
}

// Generate invokes the generator for a plan produced by Classify.
func (r *Router) Generate(ctx context.Context, lead leads.Lead, plan Plan) Decision {
	decision := Decision{Plan: plan}
	if plan.Skip() {
		return decision
	}

	var (
		content Content
		err     error
	)
	switch plan.Mode {
	case leads.ModeReply:
		content, err = r.generator.GenerateReply(ctx, lead.Identity, lead.History)
	default:
		var briefing Briefing
		briefing, err = r.brief(ctx, lead)
		if err == nil {
			content, err = r.generator.GenerateColdOpen(ctx, lead.Identity, briefing.CompanyBackground, briefing.Portfolio)
		}
	}
	if err == nil {
		err = validateContent(content)
	}
	if err != nil {
		decision.NextStatus = leads.StatusFailed
		decision.Err = asGenerationError(plan.Mode, err)
		return decision
	}
	decision.Content = content
	return decision
}

func (r *Router) brief(ctx context.Context, lead leads.Lead) (Briefing, error) {
	if r.briefing == nil {
		return Briefing{CompanyBackground: lead.CompanyBackground}, nil
	}
	return r.briefing.Brief(ctx, lead)
}

var errEmptyContent = errors.New("generator returned empty content")

func validateContent(content Content) error {
	if strings.TrimSpace(content.Body) == "" || strings.TrimSpace(content.Subject) == "" {
		return errEmptyContent
	}
	return nil
}
