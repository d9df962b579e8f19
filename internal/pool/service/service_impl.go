package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/clock"
	"github.com/fabworks/cbbstore/internal/config"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"github.com/fabworks/cbbstore/pkg/db"
	"github.com/fabworks/cbbstore/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// debitRetries bounds the optimistic-concurrency retry loop. Contention on a
// single user's pool is short-lived; anything that survives three rounds is
// reported as an accounting failure rather than spun on.
const debitRetries = 3

const defaultEntryLimit = 50
const maxEntryLimit = 200

// errPoolExists signals a lost race on first allocation; the winner's row is
// then credited through the normal update path.
var errPoolExists = errors.New("pool already exists")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       pooldomain.Repository
	Plans      *config.PlanConfigHolder
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       pooldomain.Repository
	plans      *config.PlanConfigHolder
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) pooldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pool.service"),
		repo:       p.Repo,
		plans:      p.Plans,
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetPoolStatus(ctx context.Context, userID string) (*pooldomain.PoolStatus, error) {
	pool, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return toStatus(pool), nil
}

func (s *Service) HasEnoughBalance(ctx context.Context, userID string, amountCents int64, onDemandAllowed bool) (bool, error) {
	if amountCents < 0 {
		return false, pooldomain.ErrInvalidAmount
	}
	pool, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return pool.CanCover(amountCents, onDemandAllowed), nil
}

func (s *Service) Debit(ctx context.Context, userID string, amountCents int64, reason string, onDemandAllowed bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.DebitTx(ctx, tx, userID, amountCents, reason, onDemandAllowed)
	})
}

func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, userID string, amountCents int64, reason string, onDemandAllowed bool) error {
	if amountCents < 0 {
		return pooldomain.ErrInvalidAmount
	}

	for attempt := 0; attempt < debitRetries; attempt++ {
		pool, err := s.repo.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !pool.CanCover(amountCents, onDemandAllowed) {
			s.obsMetrics.IncDebit("insufficient_balance")
			return pooldomain.ErrInsufficientBalance
		}

		fromIncluded := amountCents
		if pool.IncludedCents < fromIncluded {
			fromIncluded = pool.IncludedCents
		}
		remainder := amountCents - fromIncluded

		updated := *pool
		updated.IncludedCents -= fromIncluded
		updated.OnDemandCents += remainder

		ok, err := s.repo.UpdateCAS(ctx, tx, &updated, pool.Version)
		if err != nil {
			return unavailable(err)
		}
		if !ok {
			s.obsMetrics.IncDebitConflict()
			continue
		}

		entry := &pooldomain.LedgerEntry{
			ID:                  s.genID.Generate(),
			UserID:              userID,
			Type:                pooldomain.EntryTypeDebit,
			AmountCents:         amountCents,
			IncludedBeforeCents: pool.IncludedCents,
			IncludedAfterCents:  updated.IncludedCents,
			OnDemandBeforeCents: pool.OnDemandCents,
			OnDemandAfterCents:  updated.OnDemandCents,
			Reason:              reason,
			CreatedAt:           s.clock.Now(),
		}
		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			return unavailable(err)
		}

		s.obsMetrics.IncDebit("ok")
		s.log.Debug("pool debited",
			zap.String("user_id", userID),
			zap.Int64("amount_cents", amountCents),
			zap.Int64("from_included_cents", fromIncluded),
			zap.Int64("on_demand_cents", remainder),
			zap.String("reason", reason),
		)
		return nil
	}

	s.obsMetrics.IncDebit("contention")
	return unavailable(fmt.Errorf("debit contention for user %s", userID))
}

func (s *Service) AllocateSubscriptionCredits(ctx context.Context, userID, planName string) (*pooldomain.PoolStatus, error) {
	return s.creditPlanQuota(ctx, userID, planName, false)
}

func (s *Service) ResetPeriod(ctx context.Context, userID, planName string) (*pooldomain.PoolStatus, error) {
	return s.creditPlanQuota(ctx, userID, planName, true)
}

func (s *Service) creditPlanQuota(ctx context.Context, userID, planName string, advancePeriod bool) (*pooldomain.PoolStatus, error) {
	plan, ok := s.plans.PlanQuota(planName)
	if !ok {
		return nil, pooldomain.ErrUnknownPlan
	}

	var status *pooldomain.PoolStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool, err := s.repo.FindByUserID(ctx, tx, userID)
		if errors.Is(err, pooldomain.ErrPoolNotFound) {
			created, cerr := s.createPool(ctx, tx, userID, plan)
			if cerr == nil {
				status = toStatus(created)
				return nil
			}
			if !errors.Is(cerr, errPoolExists) {
				return cerr
			}
			// Lost the first-allocation race; fall through to the update path.
			pool, err = s.repo.FindByUserID(ctx, tx, userID)
		}
		if err != nil {
			return err
		}

		updated, err := s.applyCredit(ctx, tx, pool, plan, advancePeriod)
		if err != nil {
			return err
		}
		status = toStatus(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Service) createPool(ctx context.Context, tx *gorm.DB, userID string, plan config.Plan) (*pooldomain.USDPool, error) {
	now := s.clock.Now()
	pool := &pooldomain.USDPool{
		ID:                 s.genID.Generate(),
		UserID:             userID,
		PlanName:           strings.ToLower(plan.Name),
		IncludedCents:      plan.IncludedCents,
		IncludedTotalCents: plan.IncludedCents,
		OnDemandCents:      0,
		OnDemandLimitCents: plan.DefaultOnDemandLimit,
		LastResetAt:        now,
		NextResetAt:        now.AddDate(0, 1, 0),
		Version:            0,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, tx, pool); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errPoolExists
		}
		return nil, unavailable(err)
	}

	entry := &pooldomain.LedgerEntry{
		ID:                  s.genID.Generate(),
		UserID:              userID,
		Type:                pooldomain.EntryTypeCredit,
		AmountCents:         plan.IncludedCents,
		IncludedBeforeCents: 0,
		IncludedAfterCents:  plan.IncludedCents,
		OnDemandBeforeCents: 0,
		OnDemandAfterCents:  0,
		Reason:              "allocation:" + strings.ToLower(plan.Name),
		CreatedAt:           now,
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return nil, unavailable(err)
	}
	return pool, nil
}

// applyCredit tops the included bucket up to the plan quota. With
// advancePeriod it also rolls the period window forward one month and,
// depending on plan policy, clears the on-demand bucket.
func (s *Service) applyCredit(ctx context.Context, tx *gorm.DB, pool *pooldomain.USDPool, plan config.Plan, advancePeriod bool) (*pooldomain.USDPool, error) {
	now := s.clock.Now()

	for attempt := 0; attempt < debitRetries; attempt++ {
		updated := *pool
		updated.PlanName = strings.ToLower(plan.Name)
		updated.IncludedCents = plan.IncludedCents
		updated.IncludedTotalCents = plan.IncludedCents
		entryType := pooldomain.EntryTypeCredit
		reason := "allocation:" + updated.PlanName
		if advancePeriod {
			updated.LastResetAt = now
			updated.NextResetAt = now.AddDate(0, 1, 0)
			if s.plans.Get().OnDemandResetsMonthly {
				updated.OnDemandCents = 0
			}
			entryType = pooldomain.EntryTypeReset
			reason = "period_reset:" + updated.PlanName
		}

		ok, err := s.repo.UpdateCAS(ctx, tx, &updated, pool.Version)
		if err != nil {
			return nil, unavailable(err)
		}
		if !ok {
			fresh, err := s.repo.FindByUserID(ctx, tx, pool.UserID)
			if err != nil {
				return nil, err
			}
			pool = fresh
			continue
		}

		entry := &pooldomain.LedgerEntry{
			ID:                  s.genID.Generate(),
			UserID:              pool.UserID,
			Type:                entryType,
			AmountCents:         plan.IncludedCents,
			IncludedBeforeCents: pool.IncludedCents,
			IncludedAfterCents:  updated.IncludedCents,
			OnDemandBeforeCents: pool.OnDemandCents,
			OnDemandAfterCents:  updated.OnDemandCents,
			Reason:              reason,
			CreatedAt:           now,
		}
		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			return nil, unavailable(err)
		}
		updated.Version = pool.Version + 1
		return &updated, nil
	}

	return nil, unavailable(fmt.Errorf("credit contention for user %s", pool.UserID))
}

// SetOnDemandLimit is a pure policy update; no money moves, so no ledger
// entry is written.
func (s *Service) SetOnDemandLimit(ctx context.Context, userID string, limitCents *int64) (*pooldomain.PoolStatus, error) {
	if limitCents != nil && *limitCents < 0 {
		return nil, pooldomain.ErrInvalidAmount
	}

	var status *pooldomain.PoolStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < debitRetries; attempt++ {
			pool, err := s.repo.FindByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			updated := *pool
			updated.OnDemandLimitCents = limitCents
			ok, err := s.repo.UpdateCAS(ctx, tx, &updated, pool.Version)
			if err != nil {
				return unavailable(err)
			}
			if !ok {
				continue
			}
			updated.Version = pool.Version + 1
			status = toStatus(&updated)
			return nil
		}
		return unavailable(fmt.Errorf("limit update contention for user %s", userID))
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]pooldomain.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	if limit > maxEntryLimit {
		limit = maxEntryLimit
	}
	return s.repo.ListEntries(ctx, s.db, userID, limit)
}

func toStatus(pool *pooldomain.USDPool) *pooldomain.PoolStatus {
	var limit *string
	if pool.OnDemandLimitCents != nil {
		formatted := money.FormatCents(*pool.OnDemandLimitCents)
		limit = &formatted
	}
	return &pooldomain.PoolStatus{
		UserID:           pool.UserID,
		PlanName:         pool.PlanName,
		IncludedUSD:      money.FormatCents(pool.IncludedCents),
		IncludedTotalUSD: money.FormatCents(pool.IncludedTotalCents),
		OnDemandUSD:      money.FormatCents(pool.OnDemandCents),
		OnDemandLimitUSD: limit,
		LastResetAt:      pool.LastResetAt,
		NextResetAt:      pool.NextResetAt,
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", pooldomain.ErrAccountingUnavailable, err)
}
