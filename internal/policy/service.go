package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leaguepulse/leaguepulse/internal/classify"
)

// Origin tells where the policy in force came from.
type Origin string

const (
	OriginDefault  Origin = "default"
	OriginOverride Origin = "override"
)

// Current is the policy in force together with its origin.
type Current struct {
	Policy    classify.Policy `json:"policy"`
	Origin    Origin          `json:"origin"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// ServiceConfig holds configuration for the policy service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long a loaded policy is served without a repository
	// read. Default: 1 minute
	CacheTTL time.Duration

	// Fallback is served when no valid override is stored.
	// Default: classify.DefaultPolicy()
	Fallback *classify.Policy
}

// Service serves the threshold policy with caching and fallback.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	cacheTTL time.Duration
	fallback classify.Policy
	now      func() time.Time

	mu          sync.RWMutex
	cached      *Current
	cacheExpiry time.Time
}

// NewService creates a policy service. It panics if the fallback policy is
// invalid.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}

	fallback := classify.DefaultPolicy()
	if cfg.Fallback != nil {
		fallback = *cfg.Fallback
	}
	if err := fallback.Validate(); err != nil {
		panic(fmt.Sprintf("policy: invalid fallback: %v", err))
	}

	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger.With().Str("component", "policy").Logger(),
		cacheTTL: cacheTTL,
		fallback: fallback,
		now:      time.Now,
	}
}

// Policy returns the thresholds in force.
func (s *Service) Policy(ctx context.Context) classify.Policy {
	return s.Current(ctx).Policy
}

// Current returns the policy in force and where it came from. Repository
// errors and invalid stored overrides fall back to the default policy.
func (s *Service) Current(ctx context.Context) Current {
	if c, ok := s.getCached(); ok {
		return c
	}

	c := s.load(ctx)
	s.setCached(c)
	return c
}

func (s *Service) load(ctx context.Context) Current {
	def := Current{Policy: s.fallback, Origin: OriginDefault}
	if s.repo == nil {
		return def
	}

	o, err := s.repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to load threshold override, using defaults")
		}
		return def
	}
	if err := o.Policy.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("stored threshold override is invalid, using defaults")
		return def
	}

	updatedAt := o.UpdatedAt
	return Current{
		Policy:    o.Policy,
		Origin:    OriginOverride,
		UpdatedBy: o.UpdatedBy,
		UpdatedAt: &updatedAt,
	}
}

// Set validates and stores an override.
func (s *Service) Set(ctx context.Context, p classify.Policy, updatedBy string) (Current, error) {
	if err := p.Validate(); err != nil {
		return Current{}, err
	}
	if s.repo == nil {
		return Current{}, errors.New("policy: no repository configured")
	}

	now := s.now().UTC()
	if err := s.repo.Save(ctx, Override{Policy: p, UpdatedBy: updatedBy, UpdatedAt: now}); err != nil {
		return Current{}, fmt.Errorf("save threshold override: %w", err)
	}

	c := Current{Policy: p, Origin: OriginOverride, UpdatedBy: updatedBy, UpdatedAt: &now}
	s.setCached(c)
	s.logger.Info().Str("updated_by", updatedBy).Msg("threshold override saved")
	return c, nil
}

// Reset removes the override so the fallback policy applies again.
func (s *Service) Reset(ctx context.Context) error {
	if s.repo != nil {
		if err := s.repo.Delete(ctx); err != nil {
			return fmt.Errorf("delete threshold override: %w", err)
		}
	}
	s.InvalidateCache()
	s.logger.Info().Msg("threshold override removed")
	return nil
}

// InvalidateCache forces a repository read on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.cacheExpiry = time.Time{}
}

func (s *Service) getCached() (Current, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cached == nil || !s.now().Before(s.cacheExpiry) {
		return Current{}, false
	}
	return *s.cached, true
}

func (s *Service) setCached(c Current) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = &c
	s.cacheExpiry = s.now().Add(s.cacheTTL)
}
