package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/cursor"
	"github.com/Martian-dev/mailpoll/internal/metrics"
)

var (
	// ErrPollInFlight is returned when a poll for the instance is running
	ErrPollInFlight = errors.New("poll already in flight")

	// ErrUnknownInstance is returned for names that are not configured
	ErrUnknownInstance = errors.New("unknown instance")
)

// DispatchBatch is the outbox batch size used after each tick
const DispatchBatch = 100

// Manager owns the configured instances and makes sure at most one poll per
// instance is in flight
type Manager struct {
	runners    map[string]*Runner
	dispatcher *Dispatcher
	logger     *zap.Logger

	inFlight      map[string]struct{}
	inFlightMutex sync.Mutex
}

// NewManager creates a manager. dispatcher may be nil when incidents are
// not published.
func NewManager(logger *zap.Logger, dispatcher *Dispatcher, runners ...*Runner) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		runners:    make(map[string]*Runner, len(runners)),
		dispatcher: dispatcher,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}
	for _, r := range runners {
		m.runners[r.Instance.Name] = r
	}
	return m
}

// Tick runs one poll of the named instance, then one outbox dispatch pass
func (m *Manager) Tick(ctx context.Context, name string) (*Result, error) {
	r, ok := m.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, name)
	}

	if !m.acquire(name) {
		metrics.PollsTotal.WithLabelValues(name, "in_flight").Inc()
		return nil, fmt.Errorf("%w: %s", ErrPollInFlight, name)
	}
	defer m.release(name)

	res, err := r.Tick(ctx)
	if err != nil {
		return nil, err
	}

	if m.dispatcher != nil && len(res.Incidents) > 0 {
		if _, err := m.dispatcher.DispatchOnce(ctx, DispatchBatch); err != nil {
			m.logger.Warn("outbox dispatch failed", zap.String("instance", name), zap.Error(err))
		}
	}
	return res, nil
}

// TickAll polls every instance sequentially. Failures do not stop later
// instances; they are joined into the returned error.
func (m *Manager) TickAll(ctx context.Context) (map[string]*Result, error) {
	results := make(map[string]*Result, len(m.runners))
	var errs []error
	for _, name := range m.Instances() {
		res, err := m.Tick(ctx, name)
		if err != nil {
			m.logger.Error("poll failed", zap.String("instance", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		results[name] = res
	}
	return results, errors.Join(errs...)
}

// Dispatch runs one outbox pass
func (m *Manager) Dispatch(ctx context.Context, limit int) (int, error) {
	if m.dispatcher == nil {
		return 0, nil
	}
	return m.dispatcher.DispatchOnce(ctx, limit)
}

// Instances returns the configured instance names, sorted
func (m *Manager) Instances() []string {
	names := make([]string, 0, len(m.runners))
	for name := range m.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cursor returns the persisted cursor of an instance
func (m *Manager) Cursor(ctx context.Context, name string) (*cursor.Cursor, error) {
	r, ok := m.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, name)
	}
	return cursor.NewStore(r.Platform, name).Load(ctx, r.folder())
}

// ResetCursor removes the persisted cursor of an instance, clearing its
// watermark, dedup window and error counter
func (m *Manager) ResetCursor(ctx context.Context, name string) error {
	r, ok := m.runners[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, name)
	}
	if !m.acquire(name) {
		return fmt.Errorf("%w: %s", ErrPollInFlight, name)
	}
	defer m.release(name)

	m.logger.Info("cursor reset", zap.String("instance", name))
	return cursor.NewStore(r.Platform, name).Reset(ctx)
}

// IsRunning reports whether a poll of the instance is in flight
func (m *Manager) IsRunning(name string) bool {
	m.inFlightMutex.Lock()
	defer m.inFlightMutex.Unlock()
	_, ok := m.inFlight[name]
	return ok
}

func (m *Manager) acquire(name string) bool {
	m.inFlightMutex.Lock()
	defer m.inFlightMutex.Unlock()
	if _, ok := m.inFlight[name]; ok {
		return false
	}
	m.inFlight[name] = struct{}{}
	return true
}

func (m *Manager) release(name string) {
	m.inFlightMutex.Lock()
	defer m.inFlightMutex.Unlock()
	delete(m.inFlight, name)
}
