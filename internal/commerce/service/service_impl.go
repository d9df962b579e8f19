package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/clock"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	obsmetrics "github.com/fabworks/cbbstore/internal/observability/metrics"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/fabworks/cbbstore/pkg/money"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// errReplay aborts the checkout transaction when another attempt already
// owns the idempotency slot; the caller then reads the winner's receipt.
var errReplay = errors.New("idempotent replay")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        commercedomain.Repository
	RegistrySvc registrydomain.Service
	PoolSvc     pooldomain.Service
	GenID       *snowflake.Node
	Clock       clock.Clock
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        commercedomain.Repository
	registrySvc registrydomain.Service
	poolSvc     pooldomain.Service
	genID       *snowflake.Node
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) commercedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("commerce.service"),
		repo:        p.Repo,
		registrySvc: p.RegistrySvc,
		poolSvc:     p.PoolSvc,
		genID:       p.GenID,
		clock:       p.Clock,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Checkout(ctx context.Context, req commercedomain.CheckoutRequest) (*commercedomain.ReceiptView, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	// Cheap replay path: most retries land here without touching prices.
	if existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, req.UserID, req.IdempotencyKey); err == nil {
		s.obsMetrics.IncCheckout("replay")
		return toView(existing), nil
	} else if !errors.Is(err, commercedomain.ErrReceiptNotFound) {
		return nil, err
	}

	items, totalCents, err := s.priceItems(ctx, req.Items)
	if err != nil {
		s.obsMetrics.IncCheckout("candidate_not_found")
		return nil, err
	}

	receipt := &commercedomain.Receipt{
		ID:             s.genID.Generate(),
		ReceiptNumber:  ulid.Make().String(),
		UserID:         req.UserID,
		WorkspaceID:    req.WorkspaceID,
		JobID:          req.JobID,
		IdempotencyKey: req.IdempotencyKey,
		Items:          items,
		TotalCents:     totalCents,
		Status:         commercedomain.ReceiptStatusCompleted,
		CreatedAt:      s.clock.Now(),
	}

	// Receipt insert, pool debit and popularity bump commit together or not
	// at all. The unique (user_id, idempotency_key) index arbitrates races:
	// the losing attempt rolls back and re-reads the winner's receipt.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.InsertIgnoreDuplicate(ctx, tx, receipt)
		if err != nil {
			return err
		}
		if !won {
			return errReplay
		}

		if err := s.poolSvc.DebitTx(ctx, tx, req.UserID, totalCents, "receipt:"+receipt.ReceiptNumber, true); err != nil {
			return err
		}

		return s.registrySvc.RecordPurchasesTx(ctx, tx, req.Items)
	})

	switch {
	case err == nil:
		s.obsMetrics.IncCheckout("ok")
		s.log.Info("checkout completed",
			zap.String("receipt_id", receipt.ReceiptNumber),
			zap.String("user_id", req.UserID),
			zap.Int("items", len(items)),
			zap.Int64("total_cents", totalCents),
		)
		return toView(receipt), nil

	case errors.Is(err, errReplay):
		winner, readErr := s.repo.FindByIdempotencyKey(ctx, s.db, req.UserID, req.IdempotencyKey)
		if readErr != nil {
			return nil, readErr
		}
		s.obsMetrics.IncCheckout("replay")
		return toView(winner), nil

	case errors.Is(err, pooldomain.ErrInsufficientBalance):
		s.obsMetrics.IncCheckout("insufficient_balance")
		return nil, err

	default:
		s.obsMetrics.IncCheckout("error")
		return nil, err
	}
}

func (s *Service) priceItems(ctx context.Context, refs []registrydomain.ItemRef) ([]commercedomain.ReceiptItem, int64, error) {
	items := make([]commercedomain.ReceiptItem, 0, len(refs))
	var total int64
	for _, ref := range refs {
		candidate, err := s.registrySvc.GetExact(ctx, ref.CBBID, ref.Version)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, commercedomain.ReceiptItem{
			CBBID:      candidate.CBBID,
			Version:    candidate.Version,
			PriceCents: candidate.PriceCents,
		})
		total += candidate.PriceCents
	}
	return items, total, nil
}

func (s *Service) GetReceipt(ctx context.Context, receiptID string) (*commercedomain.ReceiptView, error) {
	receipt, err := s.repo.FindByNumber(ctx, s.db, receiptID)
	if err != nil {
		return nil, err
	}
	return toView(receipt), nil
}

func (s *Service) GetPurchaseHistory(ctx context.Context, userID string, limit, offset int) ([]commercedomain.ReceiptView, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	receipts, err := s.repo.ListByUser(ctx, s.db, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]commercedomain.ReceiptView, 0, len(receipts))
	for i := range receipts {
		out = append(out, *toView(&receipts[i]))
	}
	return out, nil
}

func (s *Service) GetReceiptRecord(ctx context.Context, receiptID string) (*commercedomain.Receipt, error) {
	return s.repo.FindByNumber(ctx, s.db, receiptID)
}

func (s *Service) MarkDelivered(ctx context.Context, receiptID string, at time.Time) error {
	return s.repo.MarkDelivered(ctx, s.db, receiptID, at)
}

func validateCheckout(req commercedomain.CheckoutRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return commercedomain.ErrInvalidRequest
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return commercedomain.ErrInvalidRequest
	}
	if len(req.Items) == 0 {
		return commercedomain.ErrInvalidRequest
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.CBBID) == "" || strings.TrimSpace(item.Version) == "" {
			return commercedomain.ErrInvalidRequest
		}
	}
	return nil
}

func toView(receipt *commercedomain.Receipt) *commercedomain.ReceiptView {
	items := make([]commercedomain.ReceiptItemView, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		items = append(items, commercedomain.ReceiptItemView{
			CBBID:    item.CBBID,
			Version:  item.Version,
			PriceUSD: money.FormatCents(item.PriceCents),
		})
	}
	return &commercedomain.ReceiptView{
		ReceiptID:     receipt.ReceiptNumber,
		UserID:        receipt.UserID,
		WorkspaceID:   receipt.WorkspaceID,
		JobID:         receipt.JobID,
		Items:         items,
		TotalPriceUSD: money.FormatCents(receipt.TotalCents),
		Status:        receipt.Status,
		CreatedAt:     receipt.CreatedAt,
		DeliveredAt:   receipt.DeliveredAt,
	}
}
