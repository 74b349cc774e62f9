// Package outbox is the bridge's Outbox Submitter: it drains the
// durable outbox table, validates and submits each row to the chain,
// and drives the pending -> finalized | dead state machine.
package outbox

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/ainur-net/chain-bridge/internal/chain"
	"github.com/ainur-net/chain-bridge/internal/codec"
	"github.com/ainur-net/chain-bridge/internal/metrics"
	"github.com/ainur-net/chain-bridge/internal/store"
	"github.com/google/uuid"
)

// errOversizedPayload is returned by Enqueue when the caller submits a
// payload larger than the 4096-byte bound the POST /v1/outbox body is
// held to.
var errOversizedPayload = errors.New("payload exceeds 4096 bytes")

// DefaultMaxRetries is the retry_count threshold above which a row is
// dead-lettered instead of retried.
const DefaultMaxRetries = 5

// DefaultBackoffBase is the linear backoff unit; actual backoff is
// min(5s, BackoffBase * (retry_count+1)).
const DefaultBackoffBase = 200 * time.Millisecond

const maxBackoff = 5 * time.Second

// SubmitterConfig configures a Submitter worker.
type SubmitterConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	Logger       *log.Logger
}

// DefaultSubmitterConfig returns the documented defaults.
func DefaultSubmitterConfig() *SubmitterConfig {
	return &SubmitterConfig{
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   DefaultMaxRetries,
		BackoffBase:  DefaultBackoffBase,
		Logger:       log.New(log.Writer(), "[outbox] ", log.LstdFlags),
	}
}

// Submitter is a single worker draining the outbox. Multiple Submitters
// may run concurrently against the same store; FOR UPDATE SKIP LOCKED
// in ClaimNextPending ensures a row is only ever claimed by one of them
// at a time.
type Submitter struct {
	repo    *store.OutboxRepository
	chain   chain.Client
	metrics *metrics.Registry
	cfg     *SubmitterConfig

	submittedTotal atomic.Uint64
	failedTotal    atomic.Uint64
	deadTotal      atomic.Uint64
	retriedTotal   atomic.Uint64
}

// NewSubmitter builds a Submitter worker.
func NewSubmitter(repo *store.OutboxRepository, chainClient chain.Client, reg *metrics.Registry, cfg *SubmitterConfig) *Submitter {
	if cfg == nil {
		cfg = DefaultSubmitterConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[outbox] ", log.LstdFlags)
	}
	return &Submitter{repo: repo, chain: chainClient, metrics: reg, cfg: cfg}
}

// Run drives the submitter loop until ctx is canceled. Each iteration
// claims at most one row; the Submitter sleeps PollInterval between
// empty iterations and a backoff-scaled delay after a failed
// submission.
func (s *Submitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delay, err := s.iterate(ctx)
		if err != nil && !errors.Is(err, store.ErrNoPendingWork) {
			s.cfg.Logger.Printf("iteration error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// iterate runs one claim-validate-submit cycle and returns how long to
// sleep before the next one.
func (s *Submitter) iterate(ctx context.Context) (time.Duration, error) {
	row, err := s.repo.ClaimNextPending(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoPendingWork) {
			return s.cfg.PollInterval, nil
		}
		return s.cfg.PollInterval, err
	}

	start := time.Now()

	if err := codec.Validate(row.Pallet, row.Call, []byte(row.Payload)); err != nil {
		// Client validation failures are never connection errors: they
		// go straight to the failed/dead ladder without a retry delay
		// benefit, since retrying a malformed payload can never
		// succeed.
		s.markOutcome(ctx, row, err, row.RetryCount+1)
		return s.cfg.PollInterval, nil
	}

	result, submitErr := s.chain.SubmitAndWatch(ctx, row.Pallet, row.Call, []byte(row.Payload))
	if s.metrics != nil {
		s.metrics.SubmitLatency.Observe(time.Since(start).Seconds())
	}

	if submitErr == nil {
		if err := s.repo.MarkFinalized(ctx, row.CorrelationID, result.TxHash); err != nil {
			s.cfg.Logger.Printf("failed to mark %s finalized: %v", row.CorrelationID, err)
			return s.cfg.PollInterval, err
		}
		if s.metrics != nil {
			s.metrics.OutboxSubmitted.Inc()
		}
		s.submittedTotal.Add(1)
		s.logSummary()
		return s.cfg.PollInterval, nil
	}

	if chain.IsConnectionError(submitErr) {
		// Connection errors leave the row pending with its retry_count
		// untouched: a dropped socket is not the payload's fault, and
		// ClaimNextPending already left the row's status as 'pending'
		// when it claimed it, so there is nothing further to persist
		// here beyond logging and backing off before the next attempt.
		s.cfg.Logger.Printf("connection error submitting %s: %v", row.CorrelationID, submitErr)
		return s.backoff(row.RetryCount), nil
	}

	s.markOutcome(ctx, row, submitErr, row.RetryCount+1)
	return s.backoff(row.RetryCount), nil
}

func (s *Submitter) markOutcome(ctx context.Context, row *store.OutboxRow, cause error, retryCount int) {
	if err := s.repo.MarkFailed(ctx, row.CorrelationID, cause.Error(), retryCount, s.cfg.MaxRetries); err != nil {
		s.cfg.Logger.Printf("failed to mark %s failed: %v", row.CorrelationID, err)
		return
	}

	if retryCount > s.cfg.MaxRetries {
		s.deadTotal.Add(1)
		if s.metrics != nil {
			s.metrics.OutboxDead.Inc()
		}
	} else {
		s.failedTotal.Add(1)
		s.retriedTotal.Add(1)
		if s.metrics != nil {
			s.metrics.OutboxFailed.Inc()
			s.metrics.OutboxRetried.Inc()
		}
	}
	s.logSummary()
}

// logSummary emits a one-line cumulative counts log after an iteration
// that produced a terminal or retryable outcome, mirroring the same
// totals kept as Prometheus counters in internal/metrics. Idle
// iterations (ErrNoPendingWork) and connection-error iterations, which
// leave a row untouched for the next attempt, do not log this line.
func (s *Submitter) logSummary() {
	s.cfg.Logger.Printf("outbox metrics: submitted=%d failed=%d dead=%d retried=%d",
		s.submittedTotal.Load(), s.failedTotal.Load(), s.deadTotal.Load(), s.retriedTotal.Load())
}

// backoff computes min(5s, BackoffBase * (retryCount+1)), the linear,
// capped retry delay between submission attempts.
func (s *Submitter) backoff(retryCount int) time.Duration {
	d := s.cfg.BackoffBase * time.Duration(retryCount+1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Enqueue validates payload and inserts a new pending outbox row. It is
// safe to call from an HTTP handler: it never blocks on chain
// submission.
func Enqueue(ctx context.Context, repo *store.OutboxRepository, pallet, call string, payload []byte) (*store.OutboxRow, error) {
	if len(payload) > 4096 {
		return nil, errOversizedPayload
	}
	if err := codec.Validate(pallet, call, payload); err != nil {
		return nil, err
	}
	return repo.Enqueue(ctx, uuid.New(), pallet, call, string(payload))
}
