// Package seed bootstraps a demo catalog for local and self-hosted
// environments so the marketplace is usable without the admin ingestion
// pipeline.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureDemoCatalog inserts a small demo catalog if the catalog is empty.
// It never touches an already-populated catalog.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&registrydomain.CBBCandidate{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		for _, candidate := range demoCatalog(node) {
			if err := tx.Create(&candidate).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func demoCatalog(node *snowflake.Node) []registrydomain.CBBCandidate {
	return []registrydomain.CBBCandidate{
		{
			ID:            node.Generate(),
			CBBID:         "cbb-uart-16550",
			Version:       "1.0.0",
			Name:          "uart16550",
			Description:   "16550-compatible UART with configurable FIFO depth",
			Tags:          datatypes.NewJSONSlice([]string{"uart", "serial", "peripheral"}),
			PriceCents:    500,
			RTLTop:        "uart16550_top",
			TestbenchTop:  "uart16550_tb",
			Simulators:    datatypes.NewJSONSlice([]string{"verilator", "vcs"}),
			IsRecommended: false,
			FileSize:      184320,
			ObjectKey:     "cbbs/cbb-uart-16550/1.0.0.tar.gz",
		},
		{
			ID:            node.Generate(),
			CBBID:         "cbb-uart-16550",
			Version:       "2.1.0",
			Name:          "uart16550",
			Description:   "16550-compatible UART, adds DMA handshake and APB wrapper",
			Tags:          datatypes.NewJSONSlice([]string{"uart", "serial", "peripheral", "apb"}),
			PriceCents:    750,
			RTLTop:        "uart16550_top",
			TestbenchTop:  "uart16550_tb",
			Simulators:    datatypes.NewJSONSlice([]string{"verilator", "vcs", "xcelium"}),
			IsRecommended: true,
			FileSize:      221184,
			ObjectKey:     "cbbs/cbb-uart-16550/2.1.0.tar.gz",
		},
		{
			ID:            node.Generate(),
			CBBID:         "cbb-axi-xbar",
			Version:       "1.3.2",
			Name:          "axi_crossbar",
			Description:   "Parameterizable AXI4 crossbar, up to 8x8 ports",
			Tags:          datatypes.NewJSONSlice([]string{"axi", "interconnect", "noc"}),
			PriceCents:    2500,
			RTLTop:        "axi_xbar_top",
			TestbenchTop:  "axi_xbar_tb",
			Simulators:    datatypes.NewJSONSlice([]string{"verilator", "vcs"}),
			IsRecommended: true,
			FileSize:      655360,
			ObjectKey:     "cbbs/cbb-axi-xbar/1.3.2.tar.gz",
		},
		{
			ID:           node.Generate(),
			CBBID:        "cbb-fifo-async",
			Version:      "0.9.1",
			Name:         "async_fifo",
			Description:  "Dual-clock FIFO with gray-coded pointers",
			Tags:         datatypes.NewJSONSlice([]string{"fifo", "cdc"}),
			PriceCents:   0,
			RTLTop:       "async_fifo_top",
			TestbenchTop: "async_fifo_tb",
			Simulators:   datatypes.NewJSONSlice([]string{"verilator", "vcs", "xcelium", "questa"}),
			FileSize:     40960,
			ObjectKey:    "cbbs/cbb-fifo-async/0.9.1.tar.gz",
		},
	}
}
