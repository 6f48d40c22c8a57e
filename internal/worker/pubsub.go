package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// ErrUnknownJob is returned by Handle for a job type this worker does not
// run. Such messages are acknowledged.
var ErrUnknownJob = errors.New("unknown job type")

// Sweeper probes every configured source.
type Sweeper interface {
	ProbeAll(ctx context.Context) []monitor.Sample
}

// Observer records an externally observed sample.
type Observer interface {
	Observe(ctx context.Context, s monitor.Sample) monitor.Sample
}

// JobHandlerConfig holds the job dependencies. A job whose dependency is nil
// is treated as unknown.
type JobHandlerConfig struct {
	Sweeper    Sweeper
	RefreshJob *RefreshJob
	Observer   Observer
	Logger     zerolog.Logger
}

// JobHandler decodes and runs job messages independently of the transport.
type JobHandler struct {
	sweeper    Sweeper
	refreshJob *RefreshJob
	observer   Observer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewJobHandler creates a job handler.
func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	return &JobHandler{
		sweeper:    cfg.Sweeper,
		refreshJob: cfg.RefreshJob,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Handle runs the job encoded in data. Errors wrapping ErrMalformedJob or
// ErrUnknownJob are permanent; any other error is worth a retry.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	switch {
	case msg.JobType == JobProbeSweep && h.sweeper != nil:
		return h.handleProbeSweep(ctx)
	case msg.JobType == JobRefetch && h.refreshJob != nil:
		return h.handleRefetch(ctx, msg)
	case msg.JobType == JobRecordSample && h.observer != nil:
		return h.handleRecordSample(ctx, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (h *JobHandler) handleProbeSweep(ctx context.Context) error {
	samples := h.sweeper.ProbeAll(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	for _, s := range samples {
		if s.Outcome == monitor.OutcomeFailure {
			failed++
		}
	}
	h.logger.Info().
		Int("sources", len(samples)).
		Int("failed", failed).
		Msg("probe sweep completed")
	return nil
}

func (h *JobHandler) handleRefetch(ctx context.Context, msg Message) error {
	result, err := h.refreshJob.Run(ctx, msg.Metrics)
	if err != nil {
		return err
	}

	// Consider it successful if at least half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (h *JobHandler) handleRecordSample(ctx context.Context, msg Message) error {
	if msg.Sample == nil {
		return fmt.Errorf("%w: record_sample requires a sample", ErrMalformedJob)
	}
	s, err := msg.Sample.ToSample(h.now())
	if err != nil {
		return err
	}

	s = h.observer.Observe(ctx, s)
	h.logger.Debug().
		Str("sample_id", s.ID).
		Str("source", string(s.Source)).
		Str("kind", string(s.Kind)).
		Str("outcome", string(s.Outcome)).
		Msg("sample recorded")
	return nil
}

// Permanent reports whether a Handle error should not be retried.
func Permanent(err error) bool {
	return errors.Is(err, ErrMalformedJob) || errors.Is(err, ErrUnknownJob)
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Probe sweeps are slow; keep few in flight.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger.With().Str("component", "worker").Logger(),
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.jobs.Handle(ctx, msg.Data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed successfully")
		msg.Ack()
	case Permanent(err):
		// Ack so the message is not redelivered.
		logger.Warn().Err(err).Msg("dropping job")
		msg.Ack()
	default:
		logger.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("job failed")
		msg.Nack()
	}
}
