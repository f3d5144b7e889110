package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"spendlog/internal/analytics"
	"spendlog/internal/cache"
	"spendlog/internal/core"
	"spendlog/internal/insight"
	"spendlog/internal/log"
	"spendlog/internal/ports"
)

// Report is one analytics answer for a user and window.
type Report struct {
	User   core.User
	Range  core.DateRange
	Result analytics.Result
	// Insight is nil when narration was not requested or is disabled.
	Insight *insight.Outcome
}

type analyticsSnapshot struct {
	user   core.User
	result analytics.Result
}

// AnalyticsStore is the read side the analytics service needs.
type AnalyticsStore interface {
	ports.UserReader
	ports.ExpenseLister
}

// AnalyticsService loads a user's expenses, runs the engine and optionally
// narrates the result. Computed results are cached per user and window;
// concurrent identical requests share one computation.
type AnalyticsService struct {
	store    AnalyticsStore
	narrator *insight.Narrator
	cache    cache.Cache[analyticsSnapshot]
	group    singleflight.Group
	logger   *log.Logger

	// gens bumps on every invalidation so in-flight loads that started
	// before a write never populate the cache. mu also guards cache
	// writes so a bump cannot land between the check and the Set.
	mu   sync.Mutex
	gens map[int64]uint64
}

// CacheConfig sizes the analytics result cache. A non-positive Size
// disables caching.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// AnalyticsOption configures an AnalyticsService.
type AnalyticsOption func(*AnalyticsService)

// WithNarrator enables insight narration.
func WithNarrator(n *insight.Narrator) AnalyticsOption {
	return func(s *AnalyticsService) { s.narrator = n }
}

// WithResultCache caches computed results. When mgr is non-nil the cache
// is registered for periodic expiry sweeps.
func WithResultCache(cfg CacheConfig, mgr *cache.Manager) AnalyticsOption {
	return func(s *AnalyticsService) {
		if cfg.Size <= 0 {
			return
		}
		lru := cache.NewLRUCache[analyticsSnapshot](cfg.Size, cfg.TTL)
		if mgr != nil {
			mgr.Register(lru)
		}
		s.cache = lru
	}
}

func NewAnalyticsService(store AnalyticsStore, logger *log.Logger, opts ...AnalyticsOption) *AnalyticsService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &AnalyticsService{
		store:  store,
		logger: logger.WithComponent(log.ComponentAnalytics),
		gens:   make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NarrationEnabled reports whether Analyze can attach an insight.
func (s *AnalyticsService) NarrationEnabled() bool {
	return s.narrator != nil
}

// Analyze computes the report for userID over r. withInsight is ignored
// when narration is disabled.
func (s *AnalyticsService) Analyze(ctx context.Context, userID int64, r core.DateRange, withInsight bool) (Report, error) {
	if err := r.Validate(); err != nil {
		return Report{}, err
	}

	snap, err := s.snapshot(ctx, userID, r)
	if err != nil {
		return Report{}, err
	}

	report := Report{User: snap.user, Range: r, Result: snap.result}
	if withInsight && s.narrator != nil {
		outcome := s.narrator.NarrateOutcome(ctx, snap.result, snap.user.Name, snap.user.Allowance)
		report.Insight = &outcome
	}

	s.logger.DebugContext(ctx, "Analytics computed",
		log.FieldUserID, userID,
		log.FieldDateRange, r.Key(),
		"days_counted", snap.result.DaysCounted,
		"overspend_days", snap.result.OverspendDays,
	)
	return report, nil
}

func (s *AnalyticsService) snapshot(ctx context.Context, userID int64, r core.DateRange) (analyticsSnapshot, error) {
	key := cacheKey(userID, r)
	if s.cache != nil {
		if snap, ok := s.cache.Get(key); ok {
			return snap, nil
		}
	}

	gen := s.generation(userID)
	flight := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := s.group.Do(flight, func() (any, error) {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		expenses, err := s.store.ListExpenses(ctx, userID, r)
		if err != nil {
			return nil, fmt.Errorf("list expenses for analytics: %w", err)
		}
		snap := analyticsSnapshot{
			user:   user,
			result: analytics.Compute(user.Allowance, analytics.FromExpenses(expenses)),
		}
		s.remember(userID, gen, key, snap)
		return snap, nil
	})
	if err != nil {
		return analyticsSnapshot{}, err
	}
	return v.(analyticsSnapshot), nil
}

// Invalidate drops cached results for userID. Writers call it after any
// change to the user's expenses or allowance.
func (s *AnalyticsService) Invalidate(userID int64) {
	if s == nil || s.cache == nil {
		return
	}
	s.mu.Lock()
	s.gens[userID]++
	n := s.cache.DeletePrefix(userPrefix(userID))
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("Analytics cache invalidated", log.FieldUserID, userID, "entries", n)
	}
}

// remember caches snap unless the user was invalidated since gen was read.
// The check and the Set share s.mu with Invalidate.
func (s *AnalyticsService) remember(userID int64, gen uint64, key string, snap analyticsSnapshot) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[userID] == gen {
		s.cache.Set(key, snap)
	}
}

func (s *AnalyticsService) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

func userPrefix(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + "|"
}

func cacheKey(userID int64, r core.DateRange) string {
	return userPrefix(userID) + r.Key()
}
