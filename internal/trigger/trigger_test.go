package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []string
	err      error
	ran      chan struct{}
}

func (f *fakeRunner) RunCycle(ctx context.Context, trigger string) (outreach.Report, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	return outreach.Report{CycleID: "c1", Trigger: trigger}, f.err
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

type fakeChecker struct {
	calls int
	err   error
}

func (f *fakeChecker) CheckReplies(ctx context.Context) (inbox.Report, error) {
	f.calls++
	return inbox.Report{Recorded: 1}, f.err
}

type recordingQueue struct {
	*MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{MemoryQueue: NewMemoryQueue(4)}
}

func (q *recordingQueue) Delete(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, handle)
	return nil
}

func message(t *testing.T, kind Kind, source string) QueueMessage {
	t.Helper()
	_, body, err := encodePayload(Payload{Kind: kind, Source: source})
	require.NoError(t, err)
	return QueueMessage{ID: "m1", Body: body, ReceiptHandle: "rh-1"}
}

func TestEncodeDecodePayload(t *testing.T) {
	payload, body, err := encodePayload(Payload{Kind: KindCheckReplies})
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ID)
	assert.False(t, payload.RequestedAt.IsZero())

	decoded, err := DecodePayload(body)
	require.NoError(t, err)
	assert.Equal(t, payload.ID, decoded.ID)
	assert.Equal(t, KindCheckReplies, decoded.Kind)

	_, err = DecodePayload(`{"id":"x","kind":"reboot"}`)
	assert.ErrorContains(t, err, "unknown kind")
	_, err = DecodePayload(`not json`)
	assert.Error(t, err)
}

func TestMemoryQueueReceiveBatchAndTimeout(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, "a"))
	require.NoError(t, q.Send(ctx, "b"))
	require.NoError(t, q.Send(ctx, "c"))

	msgs, err := q.Receive(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "b", msgs[1].Body)

	msgs, err = q.Receive(ctx, 5, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Receive(cancelled, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSQS struct {
	sent     []string
	deleted  []string
	messages []sqstypes.Message
	err      error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	api := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("id-1"),
		Body:          aws.String(`{"kind":"run_cycle"}`),
		ReceiptHandle: aws.String("rh-1"),
	}}}
	q := NewSQSQueue(api, "https://sqs.local/triggers")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "body"))
	assert.Equal(t, []string{"body"}, api.sent)

	msgs, err := q.Receive(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, "rh-1"))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"rh-1"}, api.deleted)

	api.err = errors.New("throttled")
	assert.ErrorContains(t, q.Send(ctx, "x"), "throttled")
}

func TestPublisherRejectsUnknownKind(t *testing.T) {
	p := NewPublisher(NewMemoryQueue(1), logging.Discard())
	_, err := p.Publish(context.Background(), Kind("nope"), "test")
	assert.Error(t, err)
}

func TestWorkerHandleDispatchesByKind(t *testing.T) {
	q := newRecordingQueue()
	runner := &fakeRunner{}
	checker := &fakeChecker{}
	w := NewWorker(q, runner, checker, logging.Discard())
	ctx := context.Background()

	w.Handle(ctx, message(t, KindRunCycle, "cron"))
	w.Handle(ctx, message(t, KindCheckReplies, ""))

	assert.Equal(t, []string{"queue:cron"}, runner.calls())
	assert.Equal(t, 1, checker.calls)
	assert.Equal(t, []string{"rh-1", "rh-1"}, q.deleted)
}

func TestWorkerHandleDeletesAfterFailures(t *testing.T) {
	q := newRecordingQueue()
	runner := &fakeRunner{err: outreach.ErrCycleInProgress}
	w := NewWorker(q, runner, &fakeChecker{err: errors.New("imap down")}, logging.Discard())
	ctx := context.Background()

	w.Handle(ctx, message(t, KindRunCycle, ""))
	w.Handle(ctx, message(t, KindCheckReplies, ""))
	w.Handle(ctx, QueueMessage{Body: "garbage", ReceiptHandle: "rh-bad"})

	assert.Equal(t, []string{"rh-1", "rh-1", "rh-bad"}, q.deleted)
}

func TestWorkerHandleKeepsTriggerOnShutdown(t *testing.T) {
	q := newRecordingQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWorker(q, &fakeRunner{err: context.Canceled}, nil, logging.Discard())

	w.Handle(ctx, message(t, KindRunCycle, ""))
	assert.Empty(t, q.deleted)
}

func TestWorkerConsumesPublishedTriggers(t *testing.T) {
	q := NewMemoryQueue(4)
	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	w := NewWorker(q, runner, nil, logging.Discard(), WithReceiveWaitSeconds(1), WithReceiveBatchSize(50))
	assert.Equal(t, maxReceiveBatchSize, w.cfg.receiveBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	_, err := NewPublisher(q, logging.Discard()).Publish(ctx, KindRunCycle, "scheduler")
	require.NoError(t, err)

	select {
	case <-runner.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger was not consumed")
	}
	cancel()
	w.Wait()
	assert.Equal(t, []string{"queue:scheduler"}, runner.calls())
}

func TestHandlerEnqueue(t *testing.T) {
	q := NewMemoryQueue(2)
	r := chi.NewRouter()
	r.Post("/outreach/triggers/{kind}", NewHandler(NewPublisher(q, logging.Discard()), logging.Discard()).Enqueue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/outreach/triggers/run_cycle", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp enqueueResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, KindRunCycle, resp.Kind)
	assert.NotEmpty(t, resp.TriggerID)

	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/outreach/triggers/explode", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
