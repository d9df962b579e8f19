package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fabworks/cbbstore/internal/clock"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	deliverydomain "github.com/fabworks/cbbstore/internal/delivery/domain"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// signTimeout bounds each signed-URL mint so a stalled storage backend
// cannot hang the request handler.
const signTimeout = 5 * time.Second

type Params struct {
	fx.In

	Log         *zap.Logger
	CommerceSvc commercedomain.Service
	RegistrySvc registrydomain.Service
	Signer      deliverydomain.Signer
	Clock       clock.Clock
}

type Service struct {
	log         *zap.Logger
	commerceSvc commercedomain.Service
	registrySvc registrydomain.Service
	signer      deliverydomain.Signer
	clock       clock.Clock
}

func NewService(p Params) deliverydomain.Service {
	return &Service{
		log:         p.Log.Named("delivery.service"),
		commerceSvc: p.CommerceSvc,
		registrySvc: p.RegistrySvc,
		signer:      p.Signer,
		clock:       p.Clock,
	}
}

func (s *Service) Deliver(ctx context.Context, receiptID, callerUserID string) (*deliverydomain.DeliveryResponse, error) {
	receipt, err := s.commerceSvc.GetReceiptRecord(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.UserID != callerUserID {
		return nil, deliverydomain.ErrForbidden
	}

	refs := make([]deliverydomain.AccessRef, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		candidate, err := s.registrySvc.GetExact(ctx, item.CBBID, item.Version)
		if err != nil {
			return nil, err
		}

		signCtx, cancel := context.WithTimeout(ctx, signTimeout)
		url, expiresAt, err := s.signer.SignedURL(signCtx, candidate.ObjectKey)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deliverydomain.ErrExternalService, err)
		}

		refs = append(refs, deliverydomain.AccessRef{
			CBBID:     item.CBBID,
			Version:   item.Version,
			URL:       url,
			ExpiresAt: expiresAt,
		})
	}

	now := s.clock.Now()
	deliveredAt := now
	if receipt.DeliveredAt != nil {
		deliveredAt = *receipt.DeliveredAt
	} else if err := s.commerceSvc.MarkDelivered(ctx, receiptID, now); err != nil {
		return nil, err
	}

	s.log.Info("receipt delivered",
		zap.String("receipt_id", receiptID),
		zap.String("user_id", callerUserID),
		zap.Int("items", len(refs)),
	)

	return &deliverydomain.DeliveryResponse{
		ReceiptID:   receiptID,
		Items:       refs,
		DeliveredAt: deliveredAt,
	}, nil
}
