package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

const (
	// RateLimitWindow is the sliding window every quota applies to.
	RateLimitWindow = time.Minute

	teacherQuota = 225
	memberQuota  = 120
	guestQuota   = 10
	// authQuota throttles authentication paths harder to slow brute force.
	authQuota = 10

	authPathPrefix = "/auth/"
)

// identifierLedger holds one caller's request history. The messaged flag
// suppresses repeat saturation logging until the window drains.
type identifierLedger struct {
	paths    map[string][]time.Time
	messaged bool
}

// RateLimitService admits or rejects inbound requests per (identifier, path)
// with quotas tiered by the caller's resolved rank. Identity resolution never
// blocks a request: any lookup failure degrades the caller to a guest keyed
// by network address.
type RateLimitService struct {
	userRepo ports.UserRepository
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	ledgers map[string]*identifierLedger
}

func NewRateLimitService(userRepo ports.UserRepository, logger zerolog.Logger) *RateLimitService {
	return &RateLimitService{
		userRepo: userRepo,
		logger:   logger,
		now:      time.Now,
		ledgers:  make(map[string]*identifierLedger),
	}
}

// Check classifies the caller, prunes their ledger to the sliding window, and
// decides admit or reject. The first rejection of a saturation episode is
// logged; later ones are silent but still rejected.
func (s *RateLimitService) Check(ctx context.Context, apiKey, sessionEmail, remoteAddr, path string) ports.RateDecision {
	user, identifier := s.resolveIdentity(ctx, apiKey, sessionEmail, remoteAddr)
	quota := quotaFor(user, path)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, ok := s.ledgers[identifier]
	if !ok {
		ledger = &identifierLedger{paths: make(map[string][]time.Time)}
		s.ledgers[identifier] = ledger
	}

	// Prune timestamps that fell out of the window. Any pruning re-arms the
	// saturation notification.
	stamps := ledger.paths[path]
	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) > RateLimitWindow {
		cut++
	}
	if cut > 0 {
		stamps = stamps[cut:]
		ledger.messaged = false
	}

	if len(stamps) >= quota {
		first := !ledger.messaged
		ledger.messaged = true
		ledger.paths[path] = stamps
		if first {
			s.logger.Info().
				Str("identifier", identifier).
				Str("path", path).
				Int("quota", quota).
				Msg("rate limit exceeded")
		}
		return ports.RateDecision{RetryAfter: RateLimitWindow, FirstRejection: first}
	}

	ledger.paths[path] = append(stamps, now)
	return ports.RateDecision{Allowed: true}
}

// resolveIdentity tries API key, then session email, then falls back to the
// caller's network address as an unauthenticated guest.
func (s *RateLimitService) resolveIdentity(ctx context.Context, apiKey, sessionEmail, remoteAddr string) (*domain.User, string) {
	switch {
	case apiKey != "":
		user, err := s.userRepo.FindByAPIKey(ctx, apiKey)
		if err != nil {
			s.logger.Debug().Err(err).Msg("rate limiter: api key lookup failed, treating as guest")
			return domain.GuestUser(remoteAddr), remoteAddr
		}
		return user, user.Email
	case sessionEmail != "":
		user, err := s.userRepo.FindByEmail(ctx, sessionEmail)
		if err != nil {
			s.logger.Debug().Err(err).Msg("rate limiter: session lookup failed, treating as guest")
			return domain.GuestUser(remoteAddr), remoteAddr
		}
		return user, user.Email
	default:
		return domain.GuestUser(remoteAddr), remoteAddr
	}
}

func quotaFor(user *domain.User, path string) int {
	switch {
	case user.Permissions >= domain.TeacherPermissions:
		return teacherQuota
	case user.Permissions > domain.GuestPermissions:
		if strings.HasPrefix(path, authPathPrefix) {
			return authQuota
		}
		return memberQuota
	default:
		return guestQuota
	}
}
