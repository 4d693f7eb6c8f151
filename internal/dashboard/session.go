package dashboard

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vantage/internal/environment"
	"vantage/internal/netinfo"
	"vantage/internal/scoring"
	"vantage/internal/types"
)

// Session is the view state of one visitor's dashboard: the network,
// environment and score slots. Each slot is replaced as a whole.
//
// Every refresh starts a new cycle with a higher generation and cancels the
// cycle before it. A cycle's results are only applied while its generation
// is current, so the last refresh started is the one that sticks.
type Session struct {
	ID string

	fetcher netinfo.Fetcher

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	settled    chan struct{}
	loading    bool
	network    *types.NetworkRecord
	env        *types.EnvironmentRecord
	score      *types.ScoreResult
	hints      types.ClientHints
	updatedAt  time.Time
	lastSeen   time.Time
}

func NewSession(id string, fetcher netinfo.Fetcher) *Session {
	return &Session{
		ID:       id,
		fetcher:  fetcher,
		lastSeen: time.Now(),
	}
}

// Refresh starts a gather-and-score cycle bounded by ctx. The environment is
// inspected before Refresh returns; the network fetch and scoring run in the
// background. The returned channel is closed once the cycle has settled,
// whether its results were applied or discarded as stale.
func (s *Session) Refresh(ctx context.Context, probe environment.Probe) <-chan struct{} {
	env := environment.Inspect(probe)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, probe, env)
}

// EnsureStarted runs the first cycle unless one has already begun.
// Until some cycle has been applied it returns the latest cycle's channel,
// so concurrent first visits share one cycle. After that it returns a
// closed channel and callers see the current state, loading or not.
func (s *Session) EnsureStarted(ctx context.Context, probe environment.Probe) <-chan struct{} {
	env := environment.Inspect(probe)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.generation == 0:
		return s.startLocked(ctx, probe, env)
	case s.updatedAt.IsZero():
		return s.settled
	default:
		return closedChan
	}
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (s *Session) startLocked(ctx context.Context, probe environment.Probe, env types.EnvironmentRecord) <-chan struct{} {
	cycleCtx, cancel := context.WithCancel(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	done := make(chan struct{})
	s.cancel = cancel
	s.settled = done
	s.loading = true
	s.env = &env
	s.lastSeen = time.Now()

	logger := log.WithFields(log.Fields{
		"component":  "dashboard",
		"session":    s.ID,
		"generation": gen,
	})
	logger.Debug("refresh started")

	go func() {
		defer close(done)
		defer cancel()

		rec := s.fetcher.Fetch(cycleCtx)
		result := scoring.Score(scoring.InputsFrom(rec, probe))

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			logger.WithField("current", s.generation).Debug("stale refresh discarded")
			return
		}
		s.network = &rec
		s.score = &result
		s.loading = false
		s.cancel = nil
		s.updatedAt = time.Now()
		logger.WithFields(log.Fields{
			"score": result.Score,
			"level": result.Level,
		}).Debug("refresh applied")
	}()
	return done
}

// Snapshot returns a copy of the current view state.
func (s *Session) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := types.Snapshot{
		Leaks:      types.LeakIndicators{WebRTC: types.LeakPending, DNS: types.LeakPending},
		Loading:    s.loading,
		Generation: s.generation,
		UpdatedAt:  s.updatedAt,
	}
	if s.network != nil {
		n := *s.network
		snap.Network = &n
	}
	if s.env != nil {
		e := *s.env
		snap.Environment = &e
	}
	if s.score != nil {
		sc := *s.score
		sc.Deductions = append([]types.Deduction(nil), s.score.Deductions...)
		snap.Score = &sc
	}
	return snap
}

// Started reports whether any refresh has run.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation > 0
}

func (s *Session) SetHints(h types.ClientHints) {
	s.mu.Lock()
	s.hints = h
	s.mu.Unlock()
}

func (s *Session) Hints() types.ClientHints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hints
}

// Close cancels any in-flight cycle.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}
