package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/cursor"
	"github.com/Martian-dev/mailpoll/internal/incident"
	"github.com/Martian-dev/mailpoll/internal/logging"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/metrics"
	"github.com/Martian-dev/mailpoll/internal/platform"
)

// MaxRateLimitFailures is the number of consecutive rate-limited ticks
// absorbed before the failure is surfaced
const MaxRateLimitFailures = 2

// ErrRateLimitExhausted marks a rate-limit failure that is no longer absorbed
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// Poll outcomes
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient"
	OutcomeFailed      = "failed"
)

// Instance configures one polled folder
type Instance struct {
	Name       string
	Folder     string
	MaxFetch   int
	MarkAsRead bool
}

// Result describes a finished tick
type Result struct {
	Outcome   string
	Incidents []incident.Incident
	Cursor    *cursor.Cursor
}

// Failure is returned when a tick stops on an error. Message is meant for
// people, Detail carries the error and the log of the poll.
type Failure struct {
	Message string
	Detail  string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Runner polls one instance
type Runner struct {
	Instance Instance
	Store    mailstore.Store
	Platform platform.Platform
	Logger   *zap.Logger
	Now      func() time.Time

	// ConflictDelay overrides the mark-as-read retry delay
	ConflictDelay time.Duration
}

// Tick runs a single poll: load the cursor, fetch new messages, emit
// incidents and advance the cursor. Rate-limit failures are absorbed
// MaxRateLimitFailures times, transient failures are absorbed, anything
// else leaves the cursor untouched and is returned as a *Failure.
func (r *Runner) Tick(ctx context.Context) (*Result, error) {
	start := time.Now()
	name := r.Instance.Name
	folder := r.folder()

	scope := logging.NewScope(r.Logger,
		zap.String("instance", name),
		zap.String("folder", folder),
		zap.String("poll_id", uuid.NewString()),
	)
	defer scope.Close()
	log := scope.Logger()

	res, err := r.tick(ctx, log, folder)
	outcome := OutcomeFailed
	if res != nil {
		outcome = res.Outcome
	}
	metrics.RecordPoll(name, outcome, time.Since(start))

	if err != nil {
		log.Error("poll failed", zap.Error(err))
		return nil, &Failure{
			Message: mailstore.Explain(err, false),
			Detail:  err.Error() + "\n\n" + scope.Close(),
			Err:     err,
		}
	}
	return res, nil
}

func (r *Runner) tick(ctx context.Context, log *zap.Logger, folder string) (*Result, error) {
	cursors := cursor.NewStore(r.Platform, r.Instance.Name)
	cur, err := cursors.Load(ctx, folder)
	if err != nil {
		return nil, err
	}
	log.Debug("cursor loaded",
		zap.Time("last_run_time", cur.LastRunTime),
		zap.Int("seen", cur.Seen.Len()),
		zap.Int("error_counter", cur.ErrorCounter),
	)

	incidents, plan, err := r.collect(ctx, log, cur, folder)
	switch mailstore.KindOf(err) {
	case mailstore.KindOK:
	case mailstore.KindRateLimited:
		return r.rateLimited(ctx, log, cursors, cur, err)
	case mailstore.KindTransient:
		log.Warn("mail store temporarily unavailable", zap.Error(err))
		return &Result{Outcome: OutcomeTransient, Cursor: cur}, nil
	default:
		return nil, err
	}

	next := cur.Clone()
	ids := make([]string, 0, len(incidents))
	for _, inc := range incidents {
		ids = append(ids, inc.MessageID)
	}
	next.Advance(plan.Watermark(), ids)

	if err := r.commit(ctx, cursors, next, incidents); err != nil {
		return nil, err
	}

	metrics.RecordEmitted(r.Instance.Name, len(incidents))
	metrics.RecordDedupSkipped(r.Instance.Name, plan.Skipped)
	metrics.SetWindowSize(r.Instance.Name, next.Seen.Len())
	log.Info("poll finished",
		zap.Int("incidents", len(incidents)),
		zap.Int("skipped", plan.Skipped),
		zap.Bool("truncated", plan.Pending != nil),
		zap.Time("last_run_time", next.LastRunTime),
	)

	return &Result{Outcome: OutcomeOK, Incidents: incidents, Cursor: next}, nil
}

// collect plans the tick and builds one incident per selected item, in
// ascending order
func (r *Runner) collect(ctx context.Context, log *zap.Logger, cur *cursor.Cursor, folder string) ([]incident.Incident, *Plan, error) {
	planner := &Planner{Store: r.Store, Now: r.Now}
	plan, err := planner.Plan(ctx, cur, folder, r.Instance.MaxFetch)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("items selected",
		zap.Time("since", plan.Since),
		zap.Int("items", len(plan.Items)),
		zap.Int("skipped", plan.Skipped),
	)

	builder := &incident.Builder{
		Store:         r.Store,
		MarkAsRead:    r.Instance.MarkAsRead,
		ConflictDelay: r.ConflictDelay,
	}
	incidents := make([]incident.Incident, 0, len(plan.Items))
	for _, item := range plan.Items {
		inc, err := builder.Build(ctx, item, true)
		if err != nil {
			return nil, nil, fmt.Errorf("build incident for %s: %w", item.MessageID, err)
		}
		log.Debug("incident built", zap.String("message_id", item.MessageID))
		incidents = append(incidents, *inc)
	}
	return incidents, plan, nil
}

func (r *Runner) rateLimited(ctx context.Context, log *zap.Logger, cursors *cursor.Store, cur *cursor.Cursor, cause error) (*Result, error) {
	n := cur.RateLimited()
	metrics.IncrementRateLimited(r.Instance.Name)
	log.Warn("rate limited by mail store", zap.Int("error_counter", n), zap.Error(cause))

	if err := cursors.Save(ctx, cur); err != nil {
		return nil, err
	}
	if n > MaxRateLimitFailures {
		return &Result{Outcome: OutcomeRateLimited, Cursor: cur}, fmt.Errorf("%w: %w", ErrRateLimitExhausted, cause)
	}
	return &Result{Outcome: OutcomeRateLimited, Cursor: cur}, nil
}

func (r *Runner) commit(ctx context.Context, cursors *cursor.Store, next *cursor.Cursor, incidents []incident.Incident) error {
	if c, ok := r.Platform.(platform.Committer); ok {
		data, err := next.Encode()
		if err != nil {
			return fmt.Errorf("encode cursor: %w", err)
		}
		if err := c.CommitTick(ctx, cursors.Key(), data, incidents); err != nil {
			return fmt.Errorf("commit tick: %w", err)
		}
		return nil
	}

	if len(incidents) > 0 {
		if err := r.Platform.EmitIncidents(ctx, cursors.Key(), incidents); err != nil {
			return fmt.Errorf("emit incidents: %w", err)
		}
	}
	return cursors.Save(ctx, next)
}

func (r *Runner) folder() string {
	if r.Instance.Folder == "" {
		return "Inbox"
	}
	return r.Instance.Folder
}
