// Package notify turns evaluation intents into queued notification events.
// Delivery is at-least-once: the queue consumer may see a message twice, but
// the dedupe key guarantees one event per condition-crossing episode ever
// reaches the queue from this side.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"citypulse/internal/types"
)

const (
	defaultMaxRetries = 3
	defaultMinWait    = 1 * time.Second
	defaultMaxWait    = 30 * time.Second
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventStore is the persistence capability behind deduplication and the
// dead-letter log. Satisfied by db.NotificationRepository.
type EventStore interface {
	ClaimDedupeKey(ctx context.Context, intent *types.NotificationIntent) (bool, error)
	ReleaseDedupeKey(ctx context.Context, dedupeKey string) error
	MarkDelivered(ctx context.Context, dedupeKey, messageID string, attempts int) error
	DeadLetter(ctx context.Context, intent *types.NotificationIntent, reason string, attempts int) error
}

// Publisher sends intents to the notification queue with bounded retries.
type Publisher struct {
	client   SQSSender
	queueURL string
	store    EventStore
	metrics  Metrics
	logger   *slog.Logger
	clock    types.Clock

	maxRetries int
	minWait    time.Duration
	maxWait    time.Duration
	sleepFn    func(ctx context.Context, d time.Duration) error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRetryPolicy overrides the retry bounds.
func WithRetryPolicy(maxRetries int, minWait, maxWait time.Duration) Option {
	return func(p *Publisher) {
		p.maxRetries = maxRetries
		p.minWait = minWait
		p.maxWait = maxWait
	}
}

// WithSleepFunc replaces the retry sleep, letting tests run without real
// delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Publisher) { p.sleepFn = fn }
}

// NewPublisher creates a Publisher targeting the given SQS queue.
func NewPublisher(client SQSSender, queueURL string, store EventStore, metrics Metrics, logger *slog.Logger, clock types.Clock, opts ...Option) *Publisher {
	p := &Publisher{
		client:     client,
		queueURL:   queueURL,
		store:      store,
		metrics:    metrics,
		logger:     logger,
		clock:      clock,
		maxRetries: defaultMaxRetries,
		minWait:    defaultMinWait,
		maxWait:    defaultMaxWait,
		sleepFn:    sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers one intent. Publishing a dedupe key that was already
// claimed is a no-op success (duplicate). A send failure is retried with
// jittered exponential backoff; exhausting retries dead-letters the intent
// instead of dropping it, which is a handled terminal outcome, not an error.
func (p *Publisher) Publish(ctx context.Context, intent *types.NotificationIntent) (types.EventResult, error) {
	claimed, err := p.store.ClaimDedupeKey(ctx, intent)
	if err != nil {
		return types.EventResult{}, err
	}
	if !claimed {
		p.logger.Info("duplicate intent skipped",
			slog.String("dedupe_key", intent.DedupeKey),
			slog.String("user_id", intent.UserID))
		p.metrics.RecordPublish(ctx, intent.Domain, types.PublishDuplicate)
		return types.EventResult{Status: types.PublishDuplicate}, nil
	}

	body, err := json.Marshal(intent)
	if err != nil {
		// Unserializable intents cannot be retried; release the key so the
		// episode is not permanently swallowed.
		_ = p.store.ReleaseDedupeKey(ctx, intent.DedupeKey)
		return types.EventResult{}, types.NewAppError(types.ErrCodePublish,
			"failed to marshal notification intent", err)
	}

	started := p.clock.Now()
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		out, sendErr := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if sendErr == nil {
			messageID := aws.ToString(out.MessageId)
			if err := p.store.MarkDelivered(ctx, intent.DedupeKey, messageID, attempt); err != nil {
				p.logger.Warn("failed to mark event delivered",
					slog.String("dedupe_key", intent.DedupeKey),
					slog.String("error", err.Error()))
			}
			p.metrics.RecordPublish(ctx, intent.Domain, types.PublishDelivered)
			p.metrics.RecordPublishLatency(ctx, intent.Domain, p.clock.Now().Sub(started))
			p.logger.Info("intent published",
				slog.String("dedupe_key", intent.DedupeKey),
				slog.String("message_id", messageID),
				slog.Int("attempts", attempt))
			return types.EventResult{
				Status:    types.PublishDelivered,
				MessageID: messageID,
				Attempts:  attempt,
			}, nil
		}

		lastErr = sendErr
		p.logger.Warn("publish attempt failed",
			slog.String("dedupe_key", intent.DedupeKey),
			slog.Int("attempt", attempt),
			slog.String("error", sendErr.Error()))

		if attempt <= p.maxRetries {
			if err := p.sleepFn(ctx, p.backoff(attempt)); err != nil {
				break
			}
		}
	}

	reason := fmt.Sprintf("send failed after %d attempts: %v", p.maxRetries+1, lastErr)
	if err := p.store.DeadLetter(ctx, intent, reason, p.maxRetries+1); err != nil {
		// If even the dead-letter write fails, release the key so a later
		// cycle retries the episode from scratch.
		_ = p.store.ReleaseDedupeKey(ctx, intent.DedupeKey)
		return types.EventResult{}, types.NewAppError(types.ErrCodePublish,
			"failed to dead-letter intent", err)
	}
	p.metrics.RecordPublish(ctx, intent.Domain, types.PublishDeadLettered)
	p.logger.Error("intent dead-lettered",
		slog.String("dedupe_key", intent.DedupeKey),
		slog.String("reason", reason))
	return types.EventResult{Status: types.PublishDeadLettered, Attempts: p.maxRetries + 1}, nil
}

// PublishAll publishes a batch of intents, isolating failures per intent.
func (p *Publisher) PublishAll(ctx context.Context, intents []types.NotificationIntent) []types.EventResult {
	results := make([]types.EventResult, 0, len(intents))
	for i := range intents {
		res, err := p.Publish(ctx, &intents[i])
		if err != nil {
			p.logger.Error("intent publish failed",
				slog.String("dedupe_key", intents[i].DedupeKey),
				slog.String("error", err.Error()))
			continue
		}
		results = append(results, res)
	}
	return results
}

// backoff computes the jittered exponential wait before retry n.
func (p *Publisher) backoff(attempt int) time.Duration {
	wait := p.minWait << uint(attempt-1)
	if wait > p.maxWait || wait <= 0 {
		wait = p.maxWait
	}
	// Full jitter spreads retries from concurrent publishers.
	return time.Duration(rand.Int63n(int64(wait))) + p.minWait/2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
