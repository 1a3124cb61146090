package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// DefaultReconcileInterval is how often every guild's state is re-derived
const DefaultReconcileInterval = 60 * time.Second

// TimerKind names what an armed guild timer will do
type TimerKind string

const (
	TimerVoting   TimerKind = "voting"
	TimerCooldown TimerKind = "cooldown"
)

type armedTimer struct {
	kind  TimerKind
	at    time.Time
	gen   uint64
	timer *time.Timer
}

// DuelScheduler holds at most one timer per guild plus the periodic
// reconciliation sweep. Timers are a latency optimization only; the persisted
// end and next-start timestamps stay authoritative.
type DuelScheduler struct {
	mu     sync.Mutex
	timers map[string]*armedTimer
	gen    uint64

	interval time.Duration
	cron     gocron.Scheduler
	logger   *zap.Logger
	now      func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

// NewDuelScheduler creates a scheduler whose sweep runs every interval
func NewDuelScheduler(interval time.Duration, logger *zap.Logger) (*DuelScheduler, error) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DuelScheduler{
		timers:   make(map[string]*armedTimer),
		interval: interval,
		cron:     cron,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Arm replaces the guild's timer with one that runs fn at the given time.
// A time in the past fires immediately.
func (s *DuelScheduler) Arm(guildID string, kind TimerKind, at time.Time, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.timers[guildID]; ok {
		cur.timer.Stop()
	}
	s.gen++
	gen := s.gen

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	armed := &armedTimer{kind: kind, at: at, gen: gen}
	armed.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[guildID]
		if !ok || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, guildID)
		ctx := s.ctx
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	s.timers[guildID] = armed

	s.logger.Debug("Timer armed",
		zap.String("guild_id", guildID),
		zap.String("kind", string(kind)),
		zap.Time("at", at),
		zap.Duration("delay", delay))
}

// Cancel clears the guild's timer, if any
func (s *DuelScheduler) Cancel(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.timers[guildID]; ok {
		cur.timer.Stop()
		delete(s.timers, guildID)
		s.logger.Debug("Timer cancelled",
			zap.String("guild_id", guildID),
			zap.String("kind", string(cur.kind)))
	}
}

// Armed reports the guild's pending timer
func (s *DuelScheduler) Armed(guildID string) (TimerKind, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.timers[guildID]
	if !ok {
		return "", time.Time{}, false
	}
	return cur.kind, cur.at, true
}

// Start begins the periodic sweep
func (s *DuelScheduler) Start(sweep func(ctx context.Context)) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			sweep(s.ctx)
		}),
		gocron.WithName("duel-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}
	s.cron.Start()

	s.logger.Info("Duel scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels every timer and shuts the sweep down. Later calls return the
// result of the first.
func (s *DuelScheduler) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.stop() })
	return s.stopErr
}

func (s *DuelScheduler) stop() error {
	s.cancel()

	s.mu.Lock()
	for guildID, cur := range s.timers {
		cur.timer.Stop()
		delete(s.timers, guildID)
	}
	s.mu.Unlock()

	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("Duel scheduler stopped")
	return nil
}
