// Package domain contains the catalog models for purchasable CBB versions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CBBCandidate is one published, immutable (cbb_id, version) catalog row.
// Rows are written by the admin ingestion pipeline; this service only reads
// them, except for the purchase counter maintained at checkout.
type CBBCandidate struct {
	ID            snowflake.ID                `gorm:"primaryKey"`
	CBBID         string                      `gorm:"column:cbb_id;type:text;not null;index;uniqueIndex:ux_cbb_candidates_id_version,priority:1"`
	Version       string                      `gorm:"type:text;not null;uniqueIndex:ux_cbb_candidates_id_version,priority:2"`
	Name          string                      `gorm:"type:text;not null;index"`
	Description   string                      `gorm:"type:text"`
	Tags          datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	PriceCents    int64                       `gorm:"not null"`
	RTLTop        string                      `gorm:"type:text;not null"`
	TestbenchTop  string                      `gorm:"type:text;not null"`
	Simulators    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	IsRecommended bool                        `gorm:"not null;default:false"`
	FileSize      int64                       `gorm:"not null;default:0"`
	ObjectKey     string                      `gorm:"type:text;not null"`
	PurchaseCount int64                       `gorm:"not null;default:0;index"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CBBCandidate) TableName() string { return "cbb_candidates" }

// HasTag reports whether the candidate carries the given tag.
func (c *CBBCandidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SupportsAll reports whether the candidate's simulator set covers every
// requested simulator.
func (c *CBBCandidate) SupportsAll(simulators []string) bool {
	for _, want := range simulators {
		found := false
		for _, have := range c.Simulators {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
