package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	apperrors "document-archive/internal/errors"
)

// scripted streamClient: pending entries are served by the first
// XAutoClaim call, reads return redis.Nil or a fixed error
type fakeStreamClient struct {
	pending    []redis.XMessage
	claimCalls int
	readErr    error
	readCalls  int
	onRead     func()
	acked      []string
	added      []*redis.XAddArgs
}

func (f *fakeStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.readCalls++
	if f.onRead != nil {
		f.onRead()
	}
	cmd := redis.NewXStreamSliceCmd(ctx)
	if f.readErr != nil {
		cmd.SetErr(f.readErr)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeStreamClient) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	f.claimCalls++
	cmd := redis.NewXAutoClaimCmd(ctx)
	if f.claimCalls == 1 {
		cmd.SetVal(f.pending, "0-0")
	} else {
		cmd.SetVal(nil, "0-0")
	}
	return cmd
}

func (f *fakeStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeStreamClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-1")
	return cmd
}

func testConsumer(client streamClient) *Consumer {
	return &Consumer{
		client: client,
		stream: "ocr:jobs",
		group:  "ocr-workers",
		name:   "test-consumer",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// TestClaimStale_RedeliversAbandonedEntries tests that entries left
// pending by a dead consumer reach the handler and get acknowledged
func TestClaimStale_RedeliversAbandonedEntries(t *testing.T) {
	client := &fakeStreamClient{
		pending: []redis.XMessage{
			{ID: "1-1", Values: map[string]any{payloadField: `{"documentId":7}`}},
			{ID: "1-2", Values: map[string]any{payloadField: `{"documentId":8}`}},
		},
	}
	consumer := testConsumer(client)

	var handled []string
	consumer.claimStale(context.Background(), func(ctx context.Context, payload []byte) error {
		handled = append(handled, string(payload))
		return nil
	})

	assert.Equal(t, []string{`{"documentId":7}`, `{"documentId":8}`}, handled)
	assert.Equal(t, []string{"1-1", "1-2"}, client.acked)
	assert.Empty(t, client.added)
}

// TestClaimStale_FatalClaimedEntryDeadLetters tests that a claimed
// entry failing fatally is acked and routed to the dead-letter stream
func TestClaimStale_FatalClaimedEntryDeadLetters(t *testing.T) {
	client := &fakeStreamClient{
		pending: []redis.XMessage{
			{ID: "1-1", Values: map[string]any{payloadField: `{"documentId":7}`}},
		},
	}
	consumer := testConsumer(client)

	consumer.claimStale(context.Background(), func(ctx context.Context, payload []byte) error {
		return apperrors.Fatal(errors.New("document gone"))
	})

	assert.Equal(t, []string{"1-1"}, client.acked)
	if assert.Len(t, client.added, 1) {
		assert.Equal(t, "ocr:jobs:dead", client.added[0].Stream)
		assert.Equal(t, "fatal", client.added[0].Values.(map[string]any)["kind"])
	}
}

// TestRun_ClaimsBeforeReading tests that a fresh consumer sweeps the
// pending list before waiting for new entries
func TestRun_ClaimsBeforeReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeStreamClient{
		pending: []redis.XMessage{
			{ID: "1-1", Values: map[string]any{payloadField: `{"documentId":7}`}},
		},
		onRead: cancel,
	}
	consumer := testConsumer(client)

	var handled int
	err := consumer.Run(ctx, func(ctx context.Context, payload []byte) error {
		handled++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.GreaterOrEqual(t, client.claimCalls, 1)
}

// TestRun_StopsDuringReadBackoff tests that cancellation interrupts
// the backoff after a failed read instead of sleeping through it
func TestRun_StopsDuringReadBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeStreamClient{
		readErr: errors.New("connection refused"),
		onRead:  func() { time.AfterFunc(50*time.Millisecond, cancel) },
	}
	consumer := testConsumer(client)

	start := time.Now()
	err := consumer.Run(ctx, func(ctx context.Context, payload []byte) error { return nil })

	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, client.readCalls)
}
