package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/clock"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	commercerepo "github.com/fabworks/cbbstore/internal/commerce/repository"
	"github.com/fabworks/cbbstore/internal/config"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	poolrepo "github.com/fabworks/cbbstore/internal/pool/repository"
	poolservice "github.com/fabworks/cbbstore/internal/pool/service"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	registryrepo "github.com/fabworks/cbbstore/internal/registry/repository"
	registryservice "github.com/fabworks/cbbstore/internal/registry/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type commerceFixture struct {
	svc     commercedomain.Service
	poolSvc pooldomain.Service
	db      *gorm.DB
	node    *snowflake.Node
}

func setupCommerce(t *testing.T) *commerceFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&registrydomain.CBBCandidate{},
		&pooldomain.USDPool{},
		&pooldomain.LedgerEntry{},
		&commercedomain.Receipt{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	plans := config.NewStaticPlanConfigHolder(config.DefaultPlanConfig())
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	registrySvc := registryservice.NewService(registryservice.Params{
		DB:    db,
		Log:   log,
		Repo:  registryrepo.Provide(),
		Plans: plans,
	})
	poolSvc := poolservice.NewService(poolservice.Params{
		DB:    db,
		Log:   log,
		Repo:  poolrepo.Provide(),
		Plans: plans,
		GenID: node,
		Clock: fake,
	})
	svc := NewService(Params{
		DB:          db,
		Log:         log,
		Repo:        commercerepo.Provide(),
		RegistrySvc: registrySvc,
		PoolSvc:     poolSvc,
		GenID:       node,
		Clock:       fake,
	})

	return &commerceFixture{svc: svc, poolSvc: poolSvc, db: db, node: node}
}

func (f *commerceFixture) addCandidate(t *testing.T, cbbID, version string, priceCents int64) {
	t.Helper()
	row := registrydomain.CBBCandidate{
		ID:           f.node.Generate(),
		CBBID:        cbbID,
		Version:      version,
		Name:         cbbID,
		PriceCents:   priceCents,
		RTLTop:       cbbID + "_top",
		TestbenchTop: cbbID + "_tb",
		ObjectKey:    "cbbs/" + cbbID + "/" + version + ".tar.gz",
	}
	require.NoError(t, f.db.Create(&row).Error)
}

func (f *commerceFixture) poolRow(t *testing.T, userID string) pooldomain.USDPool {
	t.Helper()
	var pool pooldomain.USDPool
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&pool).Error)
	return pool
}

func (f *commerceFixture) receiptCount(t *testing.T, userID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&commercedomain.Receipt{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestCheckoutDebitsAndIssuesReceipt(t *testing.T) {
	f := setupCommerce(t)
	f.addCandidate(t, "cbb-uart", "1.0.0", 500)
	f.addCandidate(t, "cbb-fifo", "2.0.0", 300)

	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-1", "basic")
	require.NoError(t, err)

	receipt, err := f.svc.Checkout(context.Background(), commercedomain.CheckoutRequest{
		UserID:         "user-1",
		WorkspaceID:    "ws-1",
		JobID:          "job-1",
		IdempotencyKey: "key-1",
		Items: []registrydomain.ItemRef{
			{CBBID: "cbb-uart", Version: "1.0.0"},
			{CBBID: "cbb-fifo", Version: "2.0.0"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, commercedomain.ReceiptStatusCompleted, receipt.Status)
	require.Equal(t, "8.00", receipt.TotalPriceUSD)
	require.Len(t, receipt.Items, 2)

	pool := f.poolRow(t, "user-1")
	require.EqualValues(t, 1200, pool.IncludedCents)

	var uart registrydomain.CBBCandidate
	require.NoError(t, f.db.Where("cbb_id = ? AND version = ?", "cbb-uart", "1.0.0").First(&uart).Error)
	require.EqualValues(t, 1, uart.PurchaseCount)
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	f := setupCommerce(t)
	f.addCandidate(t, "cbb-uart", "1.0.0", 500)

	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-2", "basic")
	require.NoError(t, err)

	req := commercedomain.CheckoutRequest{
		UserID:         "user-2",
		IdempotencyKey: "key-replay",
		Items:          []registrydomain.ItemRef{{CBBID: "cbb-uart", Version: "1.0.0"}},
	}

	first, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.ReceiptID, second.ReceiptID)
	require.EqualValues(t, 1, f.receiptCount(t, "user-2"))

	// Debited exactly once.
	pool := f.poolRow(t, "user-2")
	require.EqualValues(t, 1500, pool.IncludedCents)
}

func TestCheckoutConcurrentSameKey(t *testing.T) {
	f := setupCommerce(t)
	f.addCandidate(t, "cbb-uart", "1.0.0", 500)

	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-3", "basic")
	require.NoError(t, err)

	req := commercedomain.CheckoutRequest{
		UserID:         "user-3",
		IdempotencyKey: "key-race",
		Items:          []registrydomain.ItemRef{{CBBID: "cbb-uart", Version: "1.0.0"}},
	}

	const attempts = 10
	var wg sync.WaitGroup
	receipts := make([]*commercedomain.ReceiptView, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = f.svc.Checkout(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, receipts[0].ReceiptID, receipts[i].ReceiptID)
	}
	require.EqualValues(t, 1, f.receiptCount(t, "user-3"))

	pool := f.poolRow(t, "user-3")
	require.EqualValues(t, 1500, pool.IncludedCents)
}

func TestCheckoutInsufficientBalanceLeavesNoTrace(t *testing.T) {
	f := setupCommerce(t)
	f.addCandidate(t, "cbb-xbar", "1.0.0", 500)

	// 2.00 included, zero overage cap.
	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-4", "basic")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&pooldomain.USDPool{}).
		Where("user_id = ?", "user-4").
		Updates(map[string]any{"included_cents": 200, "included_total_cents": 200}).Error)
	before := f.poolRow(t, "user-4")

	_, err = f.svc.Checkout(context.Background(), commercedomain.CheckoutRequest{
		UserID:         "user-4",
		IdempotencyKey: "key-poor",
		Items:          []registrydomain.ItemRef{{CBBID: "cbb-xbar", Version: "1.0.0"}},
	})
	require.ErrorIs(t, err, pooldomain.ErrInsufficientBalance)

	// No receipt, pool untouched, key still available for retry after top-up.
	require.EqualValues(t, 0, f.receiptCount(t, "user-4"))
	after := f.poolRow(t, "user-4")
	require.Equal(t, before.IncludedCents, after.IncludedCents)
	require.Equal(t, before.OnDemandCents, after.OnDemandCents)

	require.NoError(t, f.db.Model(&pooldomain.USDPool{}).
		Where("user_id = ?", "user-4").
		Update("included_cents", 2000).Error)

	receipt, err := f.svc.Checkout(context.Background(), commercedomain.CheckoutRequest{
		UserID:         "user-4",
		IdempotencyKey: "key-poor",
		Items:          []registrydomain.ItemRef{{CBBID: "cbb-xbar", Version: "1.0.0"}},
	})
	require.NoError(t, err)
	require.Equal(t, commercedomain.ReceiptStatusCompleted, receipt.Status)
}

func TestCheckoutUnknownCandidate(t *testing.T) {
	f := setupCommerce(t)

	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-5", "basic")
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), commercedomain.CheckoutRequest{
		UserID:         "user-5",
		IdempotencyKey: "key-missing",
		Items:          []registrydomain.ItemRef{{CBBID: "cbb-ghost", Version: "9.9.9"}},
	})
	require.ErrorIs(t, err, registrydomain.ErrCandidateNotFound)
	require.EqualValues(t, 0, f.receiptCount(t, "user-5"))
}

func TestCheckoutValidation(t *testing.T) {
	f := setupCommerce(t)

	cases := []commercedomain.CheckoutRequest{
		{UserID: "", IdempotencyKey: "k", Items: []registrydomain.ItemRef{{CBBID: "a", Version: "1"}}},
		{UserID: "u", IdempotencyKey: "", Items: []registrydomain.ItemRef{{CBBID: "a", Version: "1"}}},
		{UserID: "u", IdempotencyKey: "k"},
		{UserID: "u", IdempotencyKey: "k", Items: []registrydomain.ItemRef{{CBBID: "", Version: "1"}}},
	}
	for _, req := range cases {
		_, err := f.svc.Checkout(context.Background(), req)
		require.ErrorIs(t, err, commercedomain.ErrInvalidRequest)
	}
}

func TestPurchaseHistoryNewestFirst(t *testing.T) {
	f := setupCommerce(t)
	f.addCandidate(t, "cbb-uart", "1.0.0", 100)

	_, err := f.poolSvc.AllocateSubscriptionCredits(context.Background(), "user-6", "basic")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Checkout(context.Background(), commercedomain.CheckoutRequest{
			UserID:         "user-6",
			IdempotencyKey: fmt.Sprintf("key-%d", i),
			Items:          []registrydomain.ItemRef{{CBBID: "cbb-uart", Version: "1.0.0"}},
		})
		require.NoError(t, err)
	}

	history, err := f.svc.GetPurchaseHistory(context.Background(), "user-6", 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	rest, err := f.svc.GetPurchaseHistory(context.Background(), "user-6", 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestGetReceiptNotFound(t *testing.T) {
	f := setupCommerce(t)

	_, err := f.svc.GetReceipt(context.Background(), "01JUNKRECEIPTID")
	require.ErrorIs(t, err, commercedomain.ErrReceiptNotFound)
}
