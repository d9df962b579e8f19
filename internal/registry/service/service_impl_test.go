package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/fabworks/cbbstore/internal/config"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/fabworks/cbbstore/internal/registry/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupRegistry(t *testing.T) (registrydomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&registrydomain.CBBCandidate{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Plans: config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
	})
	return svc, db, node
}

func insertCandidate(t *testing.T, db *gorm.DB, node *snowflake.Node, c registrydomain.CBBCandidate) {
	t.Helper()
	c.ID = node.Generate()
	require.NoError(t, db.Create(&c).Error)
}

func TestResolveRanking(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-uart", Version: "1.0", Name: "uart", PriceCents: 500,
		RTLTop: "uart_top", TestbenchTop: "uart_tb",
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-uart", Version: "2.0", Name: "uart", PriceCents: 300,
		RTLTop: "uart_top", TestbenchTop: "uart_tb", IsRecommended: true,
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-uart", Version: "1.5", Name: "uart", PriceCents: 100,
		RTLTop: "uart_top", TestbenchTop: "uart_tb",
	})

	results, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{CBBID: "cbb-uart"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 3)

	// Recommended first, then version descending, then price ascending.
	require.Equal(t, "2.0", results[0][0].Version)
	require.Equal(t, "1.5", results[0][1].Version)
	require.Equal(t, "1.0", results[0][2].Version)
}

func TestResolvePriceBreaksVersionTie(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-a", Version: "1.0.0", Name: "fifo-deep", PriceCents: 900,
		RTLTop: "a_top", TestbenchTop: "a_tb",
		Tags: datatypes.NewJSONSlice([]string{"fifo"}),
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-b", Version: "1.0.0", Name: "fifo-lite", PriceCents: 200,
		RTLTop: "b_top", TestbenchTop: "b_tb",
		Tags: datatypes.NewJSONSlice([]string{"fifo"}),
	})

	results, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{Tags: []string{"fifo"}}},
	})
	require.NoError(t, err)
	require.Len(t, results[0], 2)
	require.Equal(t, "cbb-b", results[0][0].CBBID)
	require.Equal(t, "cbb-a", results[0][1].CBBID)
}

func TestResolveVersionRangeExcludesMalformedCandidates(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-x", Version: "1.2.0", Name: "x", PriceCents: 100,
		RTLTop: "x_top", TestbenchTop: "x_tb",
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-x", Version: "nightly-build", Name: "x", PriceCents: 100,
		RTLTop: "x_top", TestbenchTop: "x_tb",
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-x", Version: "3.0.0", Name: "x", PriceCents: 100,
		RTLTop: "x_top", TestbenchTop: "x_tb",
	})

	results, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{CBBID: "cbb-x", MinVersion: "1.0.0", MaxVersion: "2.0.0"}},
	})
	require.NoError(t, err)
	require.Len(t, results[0], 1)
	require.Equal(t, "1.2.0", results[0][0].Version)
}

func TestResolveMalformedBoundIsRejected(t *testing.T) {
	svc, _, _ := setupRegistry(t)

	_, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{CBBID: "cbb-x", MinVersion: "not-a-version"}},
	})
	require.ErrorIs(t, err, registrydomain.ErrInvalidRequirement)
}

func TestResolveEmptyRequirementYieldsEmptyList(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-y", Version: "1.0.0", Name: "y", PriceCents: 100,
		RTLTop: "y_top", TestbenchTop: "y_tb",
	})

	results, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{
			{MinVersion: "1.0.0"},
			{CBBID: "cbb-y"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Empty(t, results[0])
	require.Len(t, results[1], 1)
}

func TestResolveSimulatorFilter(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-z", Version: "1.0.0", Name: "z", PriceCents: 100,
		RTLTop: "z_top", TestbenchTop: "z_tb",
		Simulators: datatypes.NewJSONSlice([]string{"verilator", "vcs"}),
	})
	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-z", Version: "2.0.0", Name: "z", PriceCents: 100,
		RTLTop: "z_top", TestbenchTop: "z_tb",
		Simulators: datatypes.NewJSONSlice([]string{"verilator"}),
	})

	results, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{CBBID: "cbb-z", Simulators: []string{"verilator", "vcs"}}},
	})
	require.NoError(t, err)
	require.Len(t, results[0], 1)
	require.Equal(t, "1.0.0", results[0][0].Version)
}

func TestResolveDoesNotMutateCatalog(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-pure", Version: "1.0.0", Name: "pure", PriceCents: 100,
		RTLTop: "p_top", TestbenchTop: "p_tb",
	})

	var before []registrydomain.CBBCandidate
	require.NoError(t, db.Order("id").Find(&before).Error)

	_, err := svc.Resolve(context.Background(), registrydomain.ResolveRequest{
		Requirements: []registrydomain.Requirement{{CBBID: "cbb-pure"}},
	})
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), registrydomain.SearchRequest{Query: "pure"})
	require.NoError(t, err)

	var after []registrydomain.CBBCandidate
	require.NoError(t, db.Order("id").Find(&after).Error)
	require.Equal(t, before, after)
}

func TestSearchAppliesLimit(t *testing.T) {
	svc, db, node := setupRegistry(t)

	for i := 0; i < 5; i++ {
		insertCandidate(t, db, node, registrydomain.CBBCandidate{
			CBBID: fmt.Sprintf("cbb-s%d", i), Version: "1.0.0", Name: "shared-name",
			PriceCents: int64(100 * (i + 1)), RTLTop: "s_top", TestbenchTop: "s_tb",
		})
	}

	candidates, err := svc.Search(context.Background(), registrydomain.SearchRequest{Query: "shared", Limit: 3})
	require.NoError(t, err)
	require.Len(t, candidates, 3)
}

func TestGetExactNotFound(t *testing.T) {
	svc, _, _ := setupRegistry(t)

	_, err := svc.GetExact(context.Background(), "cbb-missing", "1.0.0")
	require.ErrorIs(t, err, registrydomain.ErrCandidateNotFound)
}

func TestRecordPurchasesBumpsCounter(t *testing.T) {
	svc, db, node := setupRegistry(t)

	insertCandidate(t, db, node, registrydomain.CBBCandidate{
		CBBID: "cbb-pop", Version: "1.0.0", Name: "pop", PriceCents: 100,
		RTLTop: "pop_top", TestbenchTop: "pop_tb",
	})

	require.NoError(t, svc.RecordPurchasesTx(context.Background(), db, []registrydomain.ItemRef{
		{CBBID: "cbb-pop", Version: "1.0.0"},
	}))

	row, err := svc.GetExact(context.Background(), "cbb-pop", "1.0.0")
	require.NoError(t, err)
	require.EqualValues(t, 1, row.PurchaseCount)
}
