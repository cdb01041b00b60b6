package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "document-archive/internal/errors"
)

const payloadField = "payload"

const (
	// A pending entry idle this long is assumed to belong to a dead
	// consumer and gets claimed by a live one.
	claimMinIdle  = time.Minute
	claimInterval = 30 * time.Second
	claimBatch    = 16
)

// DeadLetterStream returns the dead-letter destination for a stream.
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}

// Publisher appends JSON-encoded messages to a Redis stream.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger.With("component", "publisher")}
}

func (p *Publisher) Publish(ctx context.Context, stream string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message for %q: %w", stream, err)
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: data},
	}).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", stream, err)
	}
	return nil
}

// Handler processes one raw message payload. A returned error never
// causes redelivery: the message is acknowledged regardless and failed
// payloads are routed to the dead-letter stream.
type Handler func(ctx context.Context, payload []byte) error

// streamClient is the slice of the Redis client the consumer uses.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Consumer reads one message at a time from a stream consumer group.
// Delivery is at-least-once; handlers must be idempotent.
type Consumer struct {
	client streamClient
	stream string
	group  string
	name   string
	logger *slog.Logger
}

func NewConsumer(client *redis.Client, stream, group string, logger *slog.Logger) *Consumer {
	host, _ := os.Hostname()
	if host == "" {
		host = "consumer"
	}
	name := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	return &Consumer{
		client: client,
		stream: stream,
		group:  group,
		name:   name,
		logger: logger.With("component", "consumer", "stream", stream, "group", group),
	}
}

// Run consumes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("consuming", "consumer", c.name)

	// Consumer names do not survive restarts, so entries read by a
	// crashed consumer must be claimed or they stay pending forever.
	c.claimStale(ctx, handler)
	lastClaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if time.Since(lastClaim) >= claimInterval {
			c.claimStale(ctx, handler)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("read from stream failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, msg, handler)
			}
		}
	}
}

// claimStale takes over entries that another consumer read but never
// acknowledged, e.g. a process killed between read and ack, and runs
// them through the normal dispatch path.
func (c *Consumer) claimStale(ctx context.Context, handler Handler) {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  claimMinIdle,
			Start:    start,
			Count:    claimBatch,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				c.logger.Error("claim of pending entries failed", "error", err)
			}
			return
		}
		for _, msg := range msgs {
			c.logger.Info("claimed pending entry", "id", msg.ID)
			c.dispatch(ctx, msg, handler)
		}
		if len(msgs) == 0 || next == "0-0" {
			return
		}
		start = next
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage, handler Handler) {
	// The message is acknowledged no matter what; a poison payload must
	// not loop through redelivery forever.
	defer func() {
		if err := c.client.XAck(context.WithoutCancel(ctx), c.stream, c.group, msg.ID).Err(); err != nil {
			c.logger.Error("ack failed", "id", msg.ID, "error", err)
		}
	}()

	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		c.logger.Warn("message without payload field", "id", msg.ID)
		c.deadLetter(ctx, msg.ID, "", "malformed", fmt.Errorf("missing %q field", payloadField))
		return
	}

	err := handler(ctx, []byte(payload))
	if err == nil {
		return
	}

	kind := "transient-exhausted"
	if apperrors.IsFatal(err) {
		kind = "fatal"
	}
	c.logger.Error("message processing failed", "id", msg.ID, "kind", kind, "error", err)
	c.deadLetter(ctx, msg.ID, payload, kind, err)
}

func (c *Consumer) deadLetter(ctx context.Context, id, payload, kind string, cause error) {
	err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: DeadLetterStream(c.stream),
		Values: map[string]any{
			payloadField: payload,
			"source":     c.stream,
			"sourceId":   id,
			"kind":       kind,
			"error":      cause.Error(),
		},
	}).Err()
	if err != nil {
		c.logger.Error("dead-letter publish failed", "id", id, "error", err)
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %q on %q: %w", c.group, c.stream, err)
	}
	return nil
}
