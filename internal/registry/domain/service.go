package domain

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Requirement is one resolution query fragment. At least one discriminating
// field must be present.
type Requirement struct {
	CBBID      string   `json:"cbb_id"`
	Name       string   `json:"name"`
	Tags       []string `json:"tags"`
	MinVersion string   `json:"min_version"`
	MaxVersion string   `json:"max_version"`
	Simulators []string `json:"simulators"`
}

// IsEmpty reports whether the requirement carries no discriminating field.
// Version bounds alone do not discriminate.
func (r Requirement) IsEmpty() bool {
	return strings.TrimSpace(r.CBBID) == "" &&
		strings.TrimSpace(r.Name) == "" &&
		len(r.Tags) == 0 &&
		len(r.Simulators) == 0
}

// Entrypoints names the RTL and testbench top modules of a candidate.
type Entrypoints struct {
	RTLTop       string `json:"rtl_top"`
	TestbenchTop string `json:"testbench_top"`
}

// Candidate is the API shape of a catalog row. Prices cross the boundary as
// decimal USD strings.
type Candidate struct {
	CBBID         string      `json:"cbb_id"`
	Version       string      `json:"version"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Tags          []string    `json:"tags"`
	PriceUSD      string      `json:"price_usd"`
	Entrypoints   Entrypoints `json:"entrypoints"`
	Simulators    []string    `json:"simulators"`
	IsRecommended bool        `json:"is_recommended"`
	FileSize      int64       `json:"file_size"`
}

type ResolveRequest struct {
	Requirements []Requirement `json:"requirements"`
}

type SearchRequest struct {
	Query      string   `json:"query"`
	Tags       []string `json:"tags"`
	Simulators []string `json:"simulators"`
	Limit      int      `json:"limit"`
}

// ItemRef identifies one purchasable (cbb_id, version) pair.
type ItemRef struct {
	CBBID   string `json:"cbb_id"`
	Version string `json:"version"`
}

type Service interface {
	// Resolve returns one ranked candidate list per requirement, in input
	// order. An empty survivor set is a valid outcome, not an error.
	Resolve(ctx context.Context, req ResolveRequest) ([][]Candidate, error)
	Search(ctx context.Context, req SearchRequest) ([]Candidate, error)
	GetPopular(ctx context.Context, limit int) ([]Candidate, error)

	// GetExact loads the catalog row for a purchasable item. Commerce prices
	// checkouts and delivery resolves object keys through it.
	GetExact(ctx context.Context, cbbID, version string) (*CBBCandidate, error)

	// RecordPurchasesTx bumps the popularity counter for each item inside the
	// caller's transaction.
	RecordPurchasesTx(ctx context.Context, tx *gorm.DB, items []ItemRef) error
}

type Repository interface {
	FindByCBBID(ctx context.Context, db *gorm.DB, cbbID string) ([]CBBCandidate, error)
	FindByNameSubstring(ctx context.Context, db *gorm.DB, name string) ([]CBBCandidate, error)
	FindAll(ctx context.Context, db *gorm.DB) ([]CBBCandidate, error)
	FindExact(ctx context.Context, db *gorm.DB, cbbID, version string) (*CBBCandidate, error)
	FindPopular(ctx context.Context, db *gorm.DB, limit int) ([]CBBCandidate, error)
	IncrementPurchaseCount(ctx context.Context, db *gorm.DB, cbbID, version string) error
	Insert(ctx context.Context, db *gorm.DB, candidate *CBBCandidate) error
}

var (
	ErrCandidateNotFound  = errors.New("candidate_not_found")
	ErrInvalidRequirement = errors.New("invalid_requirement")
)
