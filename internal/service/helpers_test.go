package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/matchup"
	"imageduel/internal/repository"
	"imageduel/pkg/database"
	"imageduel/pkg/redis"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPresenter struct {
	mu       sync.Mutex
	opened   []DuelAnnouncement
	resolved []ResolutionAnnouncement
	failOpen bool
}

func (p *recordingPresenter) DuelOpened(_ context.Context, a DuelAnnouncement) (*domain.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, a)
	if p.failOpen {
		return nil, fmt.Errorf("discord unavailable")
	}
	return &domain.MessageRef{ChannelID: a.ChannelID, MessageID: fmt.Sprintf("msg-%d", len(p.opened))}, nil
}

func (p *recordingPresenter) DuelResolved(_ context.Context, a ResolutionAnnouncement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, a)
	return nil
}

func (p *recordingPresenter) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.opened), len(p.resolved)
}

type memoryImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryImageStore() *memoryImageStore {
	return &memoryImageStore{objects: make(map[string][]byte)}
}

func (s *memoryImageStore) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if s.failPut {
		return fmt.Errorf("bucket unreachable")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	return nil
}

func (s *memoryImageStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryImageStore) URL(key string) string {
	return "https://cdn.test/" + key
}

func (s *memoryImageStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type testEnv struct {
	repos     *repository.Repositories
	cache     *CacheService
	ledger    *VoteLedger
	resolver  *DuelResolver
	selector  *matchup.Selector
	scheduler *DuelScheduler
	locker    *CommunityLocker
	manager   *LifecycleManager
	presenter *recordingPresenter
	images    *memoryImageStore
	clock     *fakeClock
	mr        *miniredis.Miniredis
	redis     *redis.Client
}

func openTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := database.NewSQLiteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, repository.AutoMigrate(db.Gorm))
	return repository.New(db.Gorm)
}

func newTestEnv(t *testing.T, withRedis bool) *testEnv {
	t.Helper()
	env := &testEnv{
		repos:     openTestRepos(t),
		presenter: &recordingPresenter{},
		images:    newMemoryImageStore(),
		clock:     newFakeClock(),
	}
	if withRedis {
		env.mr = miniredis.RunT(t)
		client, err := redis.NewClient("redis://"+env.mr.Addr(), "test", zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		env.redis = client
	}
	env.rebuild(t)
	return env
}

// rebuild creates fresh in-memory services on the same database, as a
// process restart would.
func (e *testEnv) rebuild(t *testing.T) {
	t.Helper()
	log := zap.NewNop()

	e.cache = NewCacheService(e.redis, log)
	e.ledger = NewVoteLedger(e.repos, e.cache, log)
	e.ledger.now = e.clock.Now
	e.resolver = NewDuelResolver(e.repos, e.cache, log)
	e.resolver.now = e.clock.Now
	e.selector = matchup.NewSelector(e.repos, rand.New(rand.NewPCG(7, 11)), log)

	sched, err := NewDuelScheduler(time.Hour, log)
	require.NoError(t, err)
	sched.now = e.clock.Now
	t.Cleanup(func() { _ = sched.Stop() })
	e.scheduler = sched

	e.locker = NewCommunityLocker(e.redis, log)
	e.manager = NewLifecycleManager(LifecycleDeps{
		Repos:     e.repos,
		Ledger:    e.ledger,
		Resolver:  e.resolver,
		Selector:  e.selector,
		Scheduler: e.scheduler,
		Locker:    e.locker,
		Presenter: e.presenter,
		Images:    e.images,
		Logger:    log,
	})
	e.manager.now = e.clock.Now
}

func (e *testEnv) configure(t *testing.T, guildID string, mutate func(cfg *domain.GuildConfig)) *domain.GuildConfig {
	t.Helper()
	cfg := domain.DefaultGuildConfig(guildID, domain.ResolutionSimple)
	cfg.ChannelID = "channel-" + guildID
	cfg.WildcardChance = 0
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, e.repos.GuildConfigs.Upsert(context.Background(), cfg))
	return cfg
}

func (e *testEnv) addCompetitor(t *testing.T, guildID, submitter string, rating int) *domain.Competitor {
	t.Helper()
	c := &domain.Competitor{
		ID:          uuid.New(),
		GuildID:     guildID,
		SubmitterID: submitter,
		Title:       "image by " + submitter,
		StorageKey:  guildID + "/" + uuid.NewString() + ".png",
		Rating:      rating,
		CreatedAt:   e.clock.Now(),
	}
	require.NoError(t, e.repos.Competitors.Create(context.Background(), c))
	return c
}

// openDuel persists a duel and its active pointer directly, bypassing selection
func (e *testEnv) openDuel(t *testing.T, guildID string, a, b *domain.Competitor, wildcard bool) *domain.Duel {
	t.Helper()
	ctx := context.Background()
	d := &domain.Duel{
		ID:            uuid.New(),
		GuildID:       guildID,
		CompetitorAID: a.ID,
		CompetitorBID: b.ID,
		StartedAt:     e.clock.Now(),
		IsWildcard:    wildcard,
	}
	require.NoError(t, e.repos.Duels.Create(ctx, d))
	require.NoError(t, e.repos.ActiveDuels.Create(ctx, &domain.ActiveDuel{
		GuildID:       guildID,
		DuelID:        d.ID,
		CompetitorAID: a.ID,
		CompetitorBID: b.ID,
		EndsAt:        e.clock.Now().Add(30 * time.Minute),
		IsWildcard:    wildcard,
	}))
	return d
}

func (e *testEnv) vote(t *testing.T, duelID uuid.UUID, voterID string, competitorID uuid.UUID) {
	t.Helper()
	_, err := e.ledger.CastOrChangeVote(context.Background(), duelID, voterID, competitorID)
	require.NoError(t, err)
}

func (e *testEnv) competitor(t *testing.T, guildID string, id uuid.UUID) *domain.Competitor {
	t.Helper()
	c, err := e.repos.Competitors.GetByID(context.Background(), guildID, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}
