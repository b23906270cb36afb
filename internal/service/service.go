package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"laroza/backend/internal/cache"
	"laroza/backend/internal/domain"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/logger"
	"laroza/backend/internal/store"
	"laroza/backend/internal/xid"
)

var ErrOverrideDenied = errors.New("manager override denied")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// StrictExchange guards exchange replacement debits like sale debits.
	StrictExchange bool
	// ManagerPINHash is the bcrypt hash that unlocks a permissive exchange
	// in strict mode. Empty disables the override.
	ManagerPINHash []byte
	Location       *time.Location
	CacheTTL       time.Duration
	Now            func() time.Time
}

type Service struct {
	repo   store.Repository
	ledger *inventory.Ledger
	cache  cache.ProductCache
	log    *logger.Logger
	opts   Options
}

func New(repo store.Repository, ledger *inventory.Ledger, productCache cache.ProductCache, log *logger.Logger, opts Options) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(repo, nil)
	}
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:   repo,
		ledger: ledger,
		cache:  productCache,
		log:    log,
		opts:   opts,
	}
}

// HashManagerPIN prepares a PIN for Options.ManagerPINHash.
func HashManagerPIN(pin string) ([]byte, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

func (s *Service) Location() *time.Location {
	return s.opts.Location
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) verifyManagerPIN(pin string) error {
	if len(s.opts.ManagerPINHash) == 0 {
		return fmt.Errorf("%w: no manager pin configured", ErrOverrideDenied)
	}
	if err := bcrypt.CompareHashAndPassword(s.opts.ManagerPINHash, []byte(strings.TrimSpace(pin))); err != nil {
		return ErrOverrideDenied
	}
	return nil
}

func (s *Service) invalidateProducts(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn(ctx, "product cache invalidation failed", err)
	}
}

func (s *Service) logAudit(ctx context.Context, storeType string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Employee: "system"}
	}
	if storeType == "" {
		storeType = actor.StoreType
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		StoreType:  storeType,
		Actor:      actor.Employee,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		ctx = s.log.WithFields(ctx, map[string]any{"action": action, "entity_type": entityType, "entity_id": entityID})
		s.log.Warn(ctx, "failed to write audit log", err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	rng := domain.DateRange{}
	if strings.TrimSpace(date) != "" {
		var err error
		rng, err = s.ParseRange(date, date)
		if err != nil {
			return nil, err
		}
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, rng, limit)
}
