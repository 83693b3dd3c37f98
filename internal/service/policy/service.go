// Package policy resolves the password-age policy in effect from the persisted
// settings. Reads never fail: any storage problem or invalid stored value is
// answered with a default.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/pkg/event"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/metrics"
)

const (
	MinLimitDays      = 1
	MaxLimitDays      = 365
	FallbackLimitDays = 90

	DefaultProtectedRole = "administrator"

	settingsKey  = "settings"
	bootstrapKey = "bootstrap_roles"
)

var ErrInvalidLimit = fmt.Errorf("limit must be between %d and %d days", MinLimitDays, MaxLimitDays)

// DefaultLimitFunc supplies the limit used when none is stored or the stored
// one is invalid. A result outside [MinLimitDays, MaxLimitDays] is replaced
// with FallbackLimitDays.
type DefaultLimitFunc func(ctx context.Context) int

// StaticDefault returns a DefaultLimitFunc that always answers days.
func StaticDefault(days int) DefaultLimitFunc {
	return func(context.Context) int { return days }
}

// Store is the read side used by the expiration engine.
type Store interface {
	LimitDays(ctx context.Context) int
	ExpirableRoles(ctx context.Context) []string
	Current(ctx context.Context) model.Policy
}

type Config struct {
	DefaultLimit  DefaultLimitFunc
	ProtectedRole string
	CacheTTL      time.Duration
}

type Service struct {
	repo          repository.PolicyRepository
	roles         repository.RoleRepository
	cache         *cache.Cache
	defaultLimit  DefaultLimitFunc
	protectedRole string
	logger        *logger.Logger
	metrics       *metrics.Metrics
	events        event.Emitter
}

func NewService(repo repository.PolicyRepository, roles repository.RoleRepository, cfg Config,
	log *logger.Logger, m *metrics.Metrics, events event.Emitter) *Service {
	if cfg.DefaultLimit == nil {
		cfg.DefaultLimit = StaticDefault(FallbackLimitDays)
	}
	if cfg.ProtectedRole == "" {
		cfg.ProtectedRole = DefaultProtectedRole
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = event.Discard{}
	}

	return &Service{
		repo:          repo,
		roles:         roles,
		cache:         cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		defaultLimit:  cfg.DefaultLimit,
		protectedRole: cfg.ProtectedRole,
		logger:        log,
		metrics:       m,
		events:        events,
	}
}

// ParseLimit accepts the stored text form of the limit. It reports false for
// anything that is not an integer in [MinLimitDays, MaxLimitDays]; values are
// never clamped.
func ParseLimit(raw string) (int, bool) {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || days < MinLimitDays || days > MaxLimitDays {
		return 0, false
	}
	return days, true
}

// DefaultLimitDays evaluates the default limit extension point.
func (s *Service) DefaultLimitDays(ctx context.Context) int {
	days := s.defaultLimit(ctx)
	if days < MinLimitDays || days > MaxLimitDays {
		s.fallback("default_limit", "configured default limit out of range", "value", days)
		return FallbackLimitDays
	}
	return days
}

func (s *Service) LimitDays(ctx context.Context) int {
	settings := s.settings(ctx)
	if !settings.Limit.Valid {
		return s.DefaultLimitDays(ctx)
	}

	days, ok := ParseLimit(settings.Limit.String)
	if !ok {
		s.fallback("limit", "stored limit is invalid, using default", "value", settings.Limit.String)
		return s.DefaultLimitDays(ctx)
	}
	return days
}

// ExpirableRoles returns the saved role set. Until a policy is saved it
// returns every editable role except the protected one.
func (s *Service) ExpirableRoles(ctx context.Context) []string {
	settings := s.settings(ctx)
	if settings.RolesSaved {
		return normalizeRoles(settings.Roles)
	}
	return s.bootstrapRoles(ctx)
}

func (s *Service) Current(ctx context.Context) model.Policy {
	return model.Policy{
		LimitDays: s.LimitDays(ctx),
		Roles:     s.ExpirableRoles(ctx),
	}
}

// Settings is the admin view of the policy. Unlike the other reads it
// reports storage errors.
func (s *Service) Settings(ctx context.Context) (*model.PolicyView, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy settings: %w", err)
	}
	s.cache.SetDefault(settingsKey, settings)

	return &model.PolicyView{
		Policy:           s.Current(ctx),
		DefaultLimitDays: s.DefaultLimitDays(ctx),
		RolesSaved:       settings.RolesSaved,
		UpdatedAt:        settings.UpdatedAt,
	}, nil
}

// Update saves the policy. A nil limit clears it so the default applies;
// roles becomes the authoritative set even when empty.
func (s *Service) Update(ctx context.Context, limitDays *int, roles []string) error {
	if limitDays != nil && (*limitDays < MinLimitDays || *limitDays > MaxLimitDays) {
		return ErrInvalidLimit
	}

	roles = normalizeRoles(roles)
	if err := s.repo.Save(ctx, limitDays, roles); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	s.Invalidate()

	current := s.Current(ctx)
	s.logger.Info("password policy updated", "limit_days", current.LimitDays, "roles", current.Roles)
	s.events.Emit(ctx, event.PolicyUpdated, current)

	return nil
}

func (s *Service) settings(ctx context.Context) *model.PolicySettings {
	if cached, ok := s.cache.Get(settingsKey); ok {
		return cached.(*model.PolicySettings)
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Error(err, "failed to load policy settings, using defaults")
		s.countFallback("settings")
		return &model.PolicySettings{}
	}

	s.cache.SetDefault(settingsKey, settings)
	return settings
}

func (s *Service) bootstrapRoles(ctx context.Context) []string {
	if cached, ok := s.cache.Get(bootstrapKey); ok {
		roles := cached.([]string)
		return append(make([]string, 0, len(roles)), roles...)
	}

	editable, err := s.roles.ListEditable(ctx)
	if err != nil {
		// Fail closed toward "never expire".
		s.logger.Error(err, "failed to list editable roles, no role is expirable")
		s.countFallback("roles")
		return []string{}
	}

	roles := make([]string, 0, len(editable))
	for _, r := range editable {
		if r.Name == s.protectedRole {
			continue
		}
		roles = append(roles, r.Name)
	}
	roles = normalizeRoles(roles)

	s.cache.SetDefault(bootstrapKey, roles)
	return append(make([]string, 0, len(roles)), roles...)
}

func (s *Service) fallback(field, msg string, fields ...interface{}) {
	s.logger.Warn(msg, append([]interface{}{"field", field, "reason", "invalid_policy_value"}, fields...)...)
	s.countFallback(field)
}

func (s *Service) countFallback(field string) {
	if s.metrics != nil {
		s.metrics.PolicyFallbacks.WithLabelValues(field).Inc()
	}
}

// normalizeRoles drops blanks and duplicates. The result is never nil.
func normalizeRoles(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
