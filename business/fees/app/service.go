package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fd1az/satsend/business/fees/domain"
	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/cache"
	"github.com/fd1az/satsend/internal/logger"
)

const tiersKey = "tiers"

// Service turns raw network estimates into named fee tiers. It is the only
// place tiers are built.
type Service struct {
	source EstimateSource
	cache  *cache.Cache[string, domain.Tiers]
	ttl    time.Duration
	logger logger.LoggerInterface
	now    func() time.Time
}

// NewService creates a Service caching tiers for ttl.
func NewService(source EstimateSource, ttl time.Duration, log logger.LoggerInterface) *Service {
	return &Service{
		source: source,
		cache:  cache.New[string, domain.Tiers](time.Minute),
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}
}

// GetTiers returns the current tiers. It never fails: when the network is
// unreachable the tiers are the static defaults for the configured network.
// Defaulted tiers are not cached so the next call retries the network.
func (s *Service) GetTiers(ctx context.Context) domain.Tiers {
	if t, ok := s.cache.Get(ctx, tiersKey); ok {
		return t
	}

	est := s.source.GetFeeEstimates(ctx)
	tiers := domain.BuildTiers(s.source.Network(), est, s.now())
	if est.Defaulted {
		tiers = domain.DefaultTiers(s.source.Network(), s.now())
	} else {
		s.cache.Set(ctx, tiersKey, tiers, s.ttl)
	}

	s.logger.Debug(ctx, "fee tiers computed",
		"source", tiers.Source,
		"economy", tiers.Economy.FeeRate,
		"standard", tiers.Standard.FeeRate,
		"express", tiers.Express.FeeRate,
		"defaulted", tiers.Defaulted)

	return tiers
}

// Refresh drops the cached tiers and recomputes them.
func (s *Service) Refresh(ctx context.Context) domain.Tiers {
	s.cache.Delete(ctx, tiersKey)
	return s.GetTiers(ctx)
}

// Tier returns the named tier. Custom tiers are built with CustomTier.
func (s *Service) Tier(ctx context.Context, id domain.TierID) (domain.Tier, error) {
	t, ok := s.GetTiers(ctx).Get(id)
	if !ok {
		return domain.Tier{}, apperror.Validation(apperror.CodeUnknownFeeTier, string(id))
	}
	return t, nil
}

// CustomTier builds a tier for a user-supplied rate.
func (s *Service) CustomTier(rate float64) (domain.Tier, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return domain.Tier{}, apperror.Validation(apperror.CodeInvalidInput, fmt.Sprintf("fee rate %v sat/vB", rate))
	}
	return domain.NewTier(domain.Custom, rate, 0), nil
}

// Resolve returns the tier for id, using customRate when id is custom.
func (s *Service) Resolve(ctx context.Context, id domain.TierID, customRate float64) (domain.Tier, error) {
	if id == domain.Custom {
		return s.CustomTier(customRate)
	}
	return s.Tier(ctx, id)
}
