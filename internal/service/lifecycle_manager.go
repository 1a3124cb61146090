package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/matchup"
	"imageduel/internal/repository"
	apperrors "imageduel/pkg/errors"
)

// LifecycleDeps are the collaborators of the lifecycle manager
type LifecycleDeps struct {
	Repos     *repository.Repositories
	Ledger    *VoteLedger
	Resolver  *DuelResolver
	Selector  *matchup.Selector
	Scheduler *DuelScheduler
	Locker    *CommunityLocker
	Presenter Presenter
	Images    ImageStore
	Logger    *zap.Logger
}

// LifecycleManager drives each guild through idle, voting, cooldown and
// paused. State is always re-derived from the active duel and guild config
// rows, so a restart loses nothing but in-memory timers.
type LifecycleManager struct {
	repos     *repository.Repositories
	ledger    *VoteLedger
	resolver  *DuelResolver
	selector  *matchup.Selector
	scheduler *DuelScheduler
	locker    *CommunityLocker
	presenter Presenter
	images    ImageStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(deps LifecycleDeps) *LifecycleManager {
	presenter := deps.Presenter
	if presenter == nil {
		presenter = NopPresenter{}
	}
	return &LifecycleManager{
		repos:     deps.Repos,
		ledger:    deps.Ledger,
		resolver:  deps.Resolver,
		selector:  deps.Selector,
		scheduler: deps.Scheduler,
		locker:    deps.Locker,
		presenter: presenter,
		images:    deps.Images,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetPresenter swaps the presentation adapter. It is set once at startup,
// after the chat session exists.
func (m *LifecycleManager) SetPresenter(p Presenter) {
	if p == nil {
		p = NopPresenter{}
	}
	m.presenter = p
}

// StartDuel opens a window now, bypassing any cooldown. A paused or stopped
// guild is re-enabled.
func (m *LifecycleManager) StartDuel(ctx context.Context, guildID string) (*domain.ActiveDuel, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := m.requireConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}

	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.Expired(m.now()) {
		return active, apperrors.NewConflictError("a duel is already running")
	}

	enabled, unpaused := true, false
	if err := m.repos.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{IsActive: &enabled, IsPaused: &unpaused}); err != nil {
		return nil, err
	}
	cfg.IsActive, cfg.IsPaused = true, false

	if active != nil {
		if _, err := m.resolveLocked(ctx, cfg, active); err != nil {
			return nil, err
		}
	}
	return m.startLocked(ctx, cfg)
}

// StopDuel resolves the open window with the votes it has and disables the cycle
func (m *LifecycleManager) StopDuel(ctx context.Context, guildID string) (*domain.ResolutionResult, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := m.requireConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}

	m.scheduler.Cancel(guildID)
	disabled := false
	if err := m.repos.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{
		IsActive:      &disabled,
		IsPaused:      &disabled,
		ClearNextDuel: true,
	}); err != nil {
		return nil, err
	}
	cfg.IsActive, cfg.IsPaused, cfg.NextDuelAt = false, false, nil

	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Duel cycle stopped", zap.String("guild_id", guildID), zap.Bool("had_window", active != nil))
	if active == nil {
		return nil, nil
	}
	return m.resolveLocked(ctx, cfg, active)
}

// SkipDuel resolves the open window and immediately opens the next one
func (m *LifecycleManager) SkipDuel(ctx context.Context, guildID string) (*domain.ResolutionResult, *domain.ActiveDuel, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	cfg, err := m.requireConfig(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	if cfg.IsPaused {
		return nil, nil, apperrors.NewConflictError("the duel cycle is paused")
	}

	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	if active == nil {
		return nil, nil, apperrors.NewConflictError("no duel is running")
	}

	result, err := m.resolveLocked(ctx, cfg, active)
	if err != nil {
		return nil, nil, err
	}

	next, err := m.startLocked(ctx, cfg)
	if apperrors.IsType(err, apperrors.ErrorTypeInsufficientPool) {
		return result, nil, nil
	}
	return result, next, err
}

// PauseDuel freezes the guild. An open window stays on the ledger and keeps
// its end time.
func (m *LifecycleManager) PauseDuel(ctx context.Context, guildID string) (*domain.DuelStatus, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := m.requireConfig(ctx, guildID); err != nil {
		return nil, err
	}

	m.scheduler.Cancel(guildID)
	paused := true
	if err := m.repos.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{IsPaused: &paused}); err != nil {
		return nil, err
	}

	m.logger.Info("Duel cycle paused", zap.String("guild_id", guildID))
	return m.status(ctx, guildID)
}

// ResumeDuel unfreezes the guild and re-derives its state from persisted rows
func (m *LifecycleManager) ResumeDuel(ctx context.Context, guildID string) (*domain.DuelStatus, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := m.requireConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}

	unpaused := false
	if err := m.repos.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{IsPaused: &unpaused}); err != nil {
		return nil, err
	}
	cfg.IsPaused = false

	m.logger.Info("Duel cycle resumed", zap.String("guild_id", guildID))
	if err := m.reconcileLocked(ctx, cfg); err != nil {
		return nil, err
	}
	return m.status(ctx, guildID)
}

// CastVote records a vote in the guild's open window. A non-nil duelID must
// match the open window, which rejects votes from stale controls.
func (m *LifecycleManager) CastVote(ctx context.Context, guildID string, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (*domain.VoteResponse, error) {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if active == nil || (duelID != uuid.Nil && duelID != active.DuelID) || active.Expired(m.now()) {
		return nil, apperrors.NewInvalidTargetError("This duel is no longer active")
	}

	outcome, err := m.ledger.CastOrChangeVote(ctx, active.DuelID, voterID, competitorID)
	if err != nil {
		return nil, err
	}

	resp := &domain.VoteResponse{
		DuelID:       active.DuelID,
		CompetitorID: competitorID,
		Outcome:      outcome,
		Message:      "Vote recorded",
	}
	if outcome == domain.VoteChanged {
		resp.Message = "Vote changed"
	}
	return resp, nil
}

// GetActiveDuel returns the guild's open window, or nil
func (m *LifecycleManager) GetActiveDuel(ctx context.Context, guildID string) (*domain.ActiveDuel, error) {
	return m.repos.ActiveDuels.Get(ctx, guildID)
}

// State derives the guild's lifecycle state from persisted rows
func (m *LifecycleManager) State(ctx context.Context, guildID string) (domain.LifecycleState, error) {
	cfg, err := m.repos.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return "", err
	}
	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return "", err
	}
	return deriveState(cfg, active, m.now()), nil
}

// Status returns the state, open window and live tally of the guild.
// An unconfigured guild is reported as ConfigMissing.
func (m *LifecycleManager) Status(ctx context.Context, guildID string) (*domain.DuelStatus, error) {
	return m.status(ctx, guildID)
}

func (m *LifecycleManager) status(ctx context.Context, guildID string) (*domain.DuelStatus, error) {
	cfg, err := m.requireConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	st := &domain.DuelStatus{
		GuildID: guildID,
		State:   deriveState(cfg, active, m.now()),
		Active:  active,
	}
	if active != nil {
		tally, err := m.ledger.LiveTally(ctx, active.DuelID)
		if err != nil {
			return nil, err
		}
		st.Tally = tally
	}
	return st, nil
}

// Recover re-derives every configured guild at process start
func (m *LifecycleManager) Recover(ctx context.Context) error {
	n, err := m.sweep(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("Duel state recovered", zap.Int("guilds", n))
	return nil
}

// Reconcile is the periodic liveness backstop for lost timers
func (m *LifecycleManager) Reconcile(ctx context.Context) {
	n, err := m.sweep(ctx)
	if err != nil {
		m.logger.Error("Reconciliation sweep failed", zap.Error(err))
		return
	}
	m.logger.Debug("Reconciliation sweep finished", zap.Int("guilds", n))
}

func (m *LifecycleManager) sweep(ctx context.Context) (int, error) {
	configs, err := m.repos.GuildConfigs.ListConfigured(ctx)
	if err != nil {
		return 0, err
	}
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := m.reconcileGuild(ctx, cfg.GuildID); err != nil {
			m.logger.Warn("Failed to reconcile guild",
				zap.String("guild_id", cfg.GuildID),
				zap.Error(err))
		}
	}
	return len(configs), nil
}

func (m *LifecycleManager) reconcileGuild(ctx context.Context, guildID string) error {
	unlock, err := m.locker.Lock(ctx, guildID)
	if err != nil {
		return err
	}
	defer unlock()

	cfg, err := m.repos.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return err
	}
	if !cfg.Configured() {
		m.scheduler.Cancel(guildID)
		return nil
	}
	return m.reconcileLocked(ctx, cfg)
}

// reconcileLocked brings timers and rows in line with the persisted state.
// The caller holds the guild lock.
func (m *LifecycleManager) reconcileLocked(ctx context.Context, cfg *domain.GuildConfig) error {
	guildID := cfg.GuildID
	if cfg.IsPaused {
		m.scheduler.Cancel(guildID)
		return nil
	}

	now := m.now()
	active, err := m.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return err
	}

	if active != nil {
		if !active.Expired(now) {
			m.ensureArmed(guildID, TimerVoting, active.EndsAt, m.onVotingExpired)
			return nil
		}
		if _, err := m.resolveLocked(ctx, cfg, active); err != nil {
			return err
		}
		if cfg.IsActive {
			return m.scheduleNextLocked(ctx, cfg)
		}
		return nil
	}

	if !cfg.IsActive {
		m.scheduler.Cancel(guildID)
		return nil
	}

	if cfg.NextDuelAt != nil && cfg.NextDuelAt.After(now) {
		m.ensureArmed(guildID, TimerCooldown, *cfg.NextDuelAt, m.onCooldownExpired)
		return nil
	}

	if _, err := m.startLocked(ctx, cfg); err != nil && !apperrors.IsType(err, apperrors.ErrorTypeInsufficientPool) {
		return err
	}
	return nil
}

func (m *LifecycleManager) ensureArmed(guildID string, kind TimerKind, at time.Time, fn func(ctx context.Context, guildID string)) {
	if k, armedAt, ok := m.scheduler.Armed(guildID); ok && k == kind && armedAt.Equal(at) {
		return
	}
	m.scheduler.Arm(guildID, kind, at, func(ctx context.Context) { fn(ctx, guildID) })
}

// startLocked selects a pair and opens a window. An insufficient pool leaves
// the guild idle and is returned so callers can report it.
func (m *LifecycleManager) startLocked(ctx context.Context, cfg *domain.GuildConfig) (*domain.ActiveDuel, error) {
	guildID := cfg.GuildID
	m.scheduler.Cancel(guildID)

	pair, err := m.selector.Select(ctx, guildID, matchup.OptionsFromConfig(cfg))
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInsufficientPool) {
			m.logger.Warn("Not enough competitors to start a duel",
				zap.String("guild_id", guildID),
				zap.Error(err))
			if clearErr := m.repos.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{ClearNextDuel: true}); clearErr != nil {
				return nil, clearErr
			}
		}
		return nil, err
	}

	duelID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := m.now()
	duel := &domain.Duel{
		ID:            duelID,
		GuildID:       guildID,
		CompetitorAID: pair.A.ID,
		CompetitorBID: pair.B.ID,
		StartedAt:     now,
		IsWildcard:    pair.Wildcard,
		Outcome:       domain.DuelOutcomePending,
	}
	active := &domain.ActiveDuel{
		GuildID:       guildID,
		DuelID:        duelID,
		CompetitorAID: pair.A.ID,
		CompetitorBID: pair.B.ID,
		ChannelID:     cfg.ChannelID,
		EndsAt:        now.Add(cfg.DuelDuration()),
		IsWildcard:    pair.Wildcard,
	}

	err = m.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Duels.Create(ctx, duel); err != nil {
			return err
		}
		if err := tx.ActiveDuels.Create(ctx, active); err != nil {
			if repository.IsUniqueViolation(err) {
				return apperrors.NewConflictError("a duel is already running")
			}
			return err
		}
		return tx.GuildConfigs.UpdateState(ctx, guildID, repository.StateUpdate{ClearNextDuel: true})
	})
	if err != nil {
		return nil, err
	}

	m.scheduler.Arm(guildID, TimerVoting, active.EndsAt, func(ctx context.Context) { m.onVotingExpired(ctx, guildID) })

	ref, err := m.presenter.DuelOpened(ctx, DuelAnnouncement{
		GuildID:     guildID,
		ChannelID:   cfg.ChannelID,
		DuelID:      duelID,
		CompetitorA: pair.A,
		CompetitorB: pair.B,
		ImageURLA:   m.imageURL(pair.A.StorageKey),
		ImageURLB:   m.imageURL(pair.B.StorageKey),
		EndsAt:      active.EndsAt,
		IsWildcard:  pair.Wildcard,
	})
	if err != nil {
		m.logger.Warn("Failed to announce duel",
			zap.String("guild_id", guildID),
			zap.String("duel_id", duelID.String()),
			zap.Error(err))
	} else if ref != nil {
		if err := m.repos.ActiveDuels.SetMessageRef(ctx, guildID, *ref); err != nil {
			m.logger.Warn("Failed to store duel message reference",
				zap.String("guild_id", guildID),
				zap.Error(err))
		} else {
			active.ChannelID, active.MessageID = ref.ChannelID, ref.MessageID
		}
	}

	m.logger.Info("Duel started",
		zap.String("guild_id", guildID),
		zap.String("duel_id", duelID.String()),
		zap.String("competitor_a", pair.A.ID.String()),
		zap.String("competitor_b", pair.B.ID.String()),
		zap.Bool("wildcard", pair.Wildcard),
		zap.Time("ends_at", active.EndsAt))

	return active, nil
}

// resolveLocked closes the window and announces the result. The caller
// decides what comes next.
func (m *LifecycleManager) resolveLocked(ctx context.Context, cfg *domain.GuildConfig, active *domain.ActiveDuel) (*domain.ResolutionResult, error) {
	m.scheduler.Cancel(cfg.GuildID)

	result, err := m.resolver.Resolve(ctx, ResolveRequest{
		GuildID:     cfg.GuildID,
		DuelID:      active.DuelID,
		CompetitorA: active.CompetitorAID,
		CompetitorB: active.CompetitorBID,
		Config:      cfg,
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyResolved {
		// The pointer outlived its duel; drop it so the guild can move on
		if _, err := m.repos.ActiveDuels.Delete(ctx, cfg.GuildID, active.DuelID); err != nil {
			return nil, err
		}
		return result, nil
	}

	announcement := ResolutionAnnouncement{
		GuildID:   cfg.GuildID,
		ChannelID: cfg.ChannelID,
		Result:    result,
	}
	if active.MessageID != "" {
		announcement.Previous = &domain.MessageRef{ChannelID: active.ChannelID, MessageID: active.MessageID}
	}
	if a, err := m.repos.Competitors.GetByID(ctx, cfg.GuildID, active.CompetitorAID); err == nil {
		announcement.CompetitorA = a
	}
	if b, err := m.repos.Competitors.GetByID(ctx, cfg.GuildID, active.CompetitorBID); err == nil {
		announcement.CompetitorB = b
	}
	if err := m.presenter.DuelResolved(ctx, announcement); err != nil {
		m.logger.Warn("Failed to announce duel result",
			zap.String("guild_id", cfg.GuildID),
			zap.String("duel_id", active.DuelID.String()),
			zap.Error(err))
	}
	return result, nil
}

// scheduleNextLocked enters cooldown and arms the next start
func (m *LifecycleManager) scheduleNextLocked(ctx context.Context, cfg *domain.GuildConfig) error {
	next := m.now().Add(cfg.Cooldown())
	if err := m.repos.GuildConfigs.UpdateState(ctx, cfg.GuildID, repository.StateUpdate{NextDuelAt: &next}); err != nil {
		return err
	}
	cfg.NextDuelAt = &next
	m.scheduler.Arm(cfg.GuildID, TimerCooldown, next, func(ctx context.Context) { m.onCooldownExpired(ctx, cfg.GuildID) })
	return nil
}

func (m *LifecycleManager) onVotingExpired(ctx context.Context, guildID string) {
	m.logger.Debug("Voting window expired", zap.String("guild_id", guildID))
	if err := m.reconcileGuild(ctx, guildID); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("Failed to close voting window",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}
}

func (m *LifecycleManager) onCooldownExpired(ctx context.Context, guildID string) {
	m.logger.Debug("Cooldown expired", zap.String("guild_id", guildID))
	if err := m.reconcileGuild(ctx, guildID); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("Failed to start next duel",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}
}

func (m *LifecycleManager) requireConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	cfg, err := m.repos.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, apperrors.NewConfigMissingError(guildID)
	}
	return cfg, nil
}

func (m *LifecycleManager) imageURL(key string) string {
	if m.images == nil {
		return ""
	}
	return m.images.URL(key)
}

func deriveState(cfg *domain.GuildConfig, active *domain.ActiveDuel, now time.Time) domain.LifecycleState {
	switch {
	case cfg != nil && cfg.IsPaused:
		return domain.StatePaused
	case active != nil:
		return domain.StateVoting
	case cfg != nil && cfg.NextDuelAt != nil && cfg.NextDuelAt.After(now):
		return domain.StateCooldown
	default:
		return domain.StateIdle
	}
}
