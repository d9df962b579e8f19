package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	"github.com/fabworks/cbbstore/internal/config"
	deliverydomain "github.com/fabworks/cbbstore/internal/delivery/domain"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type registrySvcStub struct{}

func (registrySvcStub) Resolve(ctx context.Context, req registrydomain.ResolveRequest) ([][]registrydomain.Candidate, error) {
	return [][]registrydomain.Candidate{{}}, nil
}

func (registrySvcStub) Search(ctx context.Context, req registrydomain.SearchRequest) ([]registrydomain.Candidate, error) {
	return nil, nil
}

func (registrySvcStub) GetPopular(ctx context.Context, limit int) ([]registrydomain.Candidate, error) {
	return nil, nil
}

func (registrySvcStub) GetExact(ctx context.Context, cbbID, version string) (*registrydomain.CBBCandidate, error) {
	return nil, registrydomain.ErrCandidateNotFound
}

func (registrySvcStub) RecordPurchasesTx(ctx context.Context, tx *gorm.DB, items []registrydomain.ItemRef) error {
	return nil
}

type commerceSvcStub struct {
	checkoutErr error
	receipt     *commercedomain.ReceiptView
}

func (s commerceSvcStub) Checkout(ctx context.Context, req commercedomain.CheckoutRequest) (*commercedomain.ReceiptView, error) {
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return s.receipt, nil
}

func (s commerceSvcStub) GetReceipt(ctx context.Context, receiptID string) (*commercedomain.ReceiptView, error) {
	if s.receipt == nil || s.receipt.ReceiptID != receiptID {
		return nil, commercedomain.ErrReceiptNotFound
	}
	return s.receipt, nil
}

func (commerceSvcStub) GetPurchaseHistory(ctx context.Context, userID string, limit, offset int) ([]commercedomain.ReceiptView, error) {
	return nil, nil
}

func (commerceSvcStub) GetReceiptRecord(ctx context.Context, receiptID string) (*commercedomain.Receipt, error) {
	return nil, commercedomain.ErrReceiptNotFound
}

func (commerceSvcStub) MarkDelivered(ctx context.Context, receiptID string, at time.Time) error {
	return nil
}

type poolSvcStub struct{}

func (poolSvcStub) GetPoolStatus(ctx context.Context, userID string) (*pooldomain.PoolStatus, error) {
	return nil, pooldomain.ErrPoolNotFound
}

func (poolSvcStub) HasEnoughBalance(ctx context.Context, userID string, amountCents int64, onDemandAllowed bool) (bool, error) {
	return false, nil
}

func (poolSvcStub) Debit(ctx context.Context, userID string, amountCents int64, reason string, onDemandAllowed bool) error {
	return nil
}

func (poolSvcStub) DebitTx(ctx context.Context, tx *gorm.DB, userID string, amountCents int64, reason string, onDemandAllowed bool) error {
	return nil
}

func (poolSvcStub) AllocateSubscriptionCredits(ctx context.Context, userID, planName string) (*pooldomain.PoolStatus, error) {
	return nil, pooldomain.ErrUnknownPlan
}

func (poolSvcStub) ResetPeriod(ctx context.Context, userID, planName string) (*pooldomain.PoolStatus, error) {
	return nil, pooldomain.ErrUnknownPlan
}

func (poolSvcStub) SetOnDemandLimit(ctx context.Context, userID string, limitCents *int64) (*pooldomain.PoolStatus, error) {
	return nil, pooldomain.ErrPoolNotFound
}

func (poolSvcStub) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]pooldomain.LedgerEntry, error) {
	return nil, nil
}

type deliverySvcStub struct {
	err error
}

func (s deliverySvcStub) Deliver(ctx context.Context, receiptID, callerUserID string) (*deliverydomain.DeliveryResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &deliverydomain.DeliveryResponse{ReceiptID: receiptID}, nil
}

func newTestServer(t *testing.T, commerce commercedomain.Service, delivery deliverydomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{SchedulerToken: "secret"}
	engine := NewEngine(cfg, zap.NewNop())

	return NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		Log:         zap.NewNop(),
		RegistrySvc: registrySvcStub{},
		CommerceSvc: commerce,
		PoolSvc:     poolSvcStub{},
		DeliverySvc: delivery,
	})
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestUserEndpointsRequireIdentity(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/checkout", `{"items":[]}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/v1/pool", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegistryEndpointsAreOpen(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/registry/resolve", `{"requirements":[{"cbb_id":"cbb-x"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutMapsInsufficientBalance(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{checkoutErr: pooldomain.ErrInsufficientBalance}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/checkout",
		`{"items":[{"cbb_id":"cbb-x","version":"1.0.0"}],"idempotency_key":"k"}`,
		map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient_balance")
}

func TestGetReceiptNotFoundMapsTo404(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{})

	rec := do(s, http.MethodGet, "/v1/receipts/unknown", "", map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliverForbiddenMapsTo403(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{err: deliverydomain.ErrForbidden})

	rec := do(s, http.MethodPost, "/v1/receipts/r-1/deliver", "", map[string]string{"X-User-ID": "intruder"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeliverExternalFailureMapsTo503(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{err: deliverydomain.ErrExternalService})

	rec := do(s, http.MethodPost, "/v1/receipts/r-1/deliver", "", map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCollaboratorEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/billing/allocate", `{"user_id":"u","plan_name":"basic"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodPost, "/v1/billing/allocate", `{"user_id":"u","plan_name":"basic"}`,
		map[string]string{"X-Scheduler-Token": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token reaches the handler; the stub rejects the plan.
	rec = do(s, http.MethodPost, "/v1/billing/allocate", `{"user_id":"u","plan_name":"basic"}`,
		map[string]string{"X-Scheduler-Token": "secret"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationErrorsMapTo400(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{checkoutErr: commercedomain.ErrInvalidRequest}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/checkout", `{"items":[]}`, map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "validation_error")
}

func TestUnknownErrorsMapTo500(t *testing.T) {
	s := newTestServer(t, commerceSvcStub{checkoutErr: errors.New("boom")}, deliverySvcStub{})

	rec := do(s, http.MethodPost, "/v1/checkout",
		`{"items":[{"cbb_id":"a","version":"1"}],"idempotency_key":"k"}`,
		map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}
