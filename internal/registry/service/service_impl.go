package service

import (
	"context"
	"sort"
	"strings"

	"github.com/fabworks/cbbstore/internal/cache"
	"github.com/fabworks/cbbstore/internal/config"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/fabworks/cbbstore/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gorm.io/gorm"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    registrydomain.Repository
	Plans   *config.PlanConfigHolder
	Popular *cache.PopularCache `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    registrydomain.Repository
	plans   *config.PlanConfigHolder
	popular *cache.PopularCache
}

func NewService(p Params) registrydomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("registry.service"),
		repo:    p.Repo,
		plans:   p.Plans,
		popular: p.Popular,
	}
}

func (s *Service) Resolve(ctx context.Context, req registrydomain.ResolveRequest) ([][]registrydomain.Candidate, error) {
	results := make([][]registrydomain.Candidate, 0, len(req.Requirements))
	for _, requirement := range req.Requirements {
		if err := validateRequirement(requirement); err != nil {
			return nil, err
		}
		if requirement.IsEmpty() {
			results = append(results, []registrydomain.Candidate{})
			continue
		}
		candidates, err := s.resolveOne(ctx, requirement)
		if err != nil {
			return nil, err
		}
		results = append(results, candidates)
	}
	return results, nil
}

func (s *Service) resolveOne(ctx context.Context, req registrydomain.Requirement) ([]registrydomain.Candidate, error) {
	pool, err := s.loadPool(ctx, req)
	if err != nil {
		return nil, err
	}

	survivors := make([]registrydomain.CBBCandidate, 0, len(pool))
	for _, c := range pool {
		if !matchesRequirement(&c, req) {
			continue
		}
		survivors = append(survivors, c)
	}

	s.rank(survivors)
	return toViews(survivors), nil
}

// loadPool narrows the catalog scan as far as SQL can take it; tag,
// simulator and version filtering happens in matchesRequirement.
func (s *Service) loadPool(ctx context.Context, req registrydomain.Requirement) ([]registrydomain.CBBCandidate, error) {
	if id := strings.TrimSpace(req.CBBID); id != "" {
		return s.repo.FindByCBBID(ctx, s.db, id)
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		return s.repo.FindByNameSubstring(ctx, s.db, strings.ToLower(name))
	}
	return s.repo.FindAll(ctx, s.db)
}

func matchesRequirement(c *registrydomain.CBBCandidate, req registrydomain.Requirement) bool {
	for _, tag := range req.Tags {
		if !c.HasTag(tag) {
			return false
		}
	}
	if len(req.Simulators) > 0 && !c.SupportsAll(req.Simulators) {
		return false
	}
	return inVersionRange(c.Version, req.MinVersion, req.MaxVersion)
}

// inVersionRange applies the inclusive semantic-version bounds. A candidate
// with an unparseable version is excluded from ranged filters rather than
// raising.
func inVersionRange(version, minVersion, maxVersion string) bool {
	if minVersion == "" && maxVersion == "" {
		return true
	}
	v := canonical(version)
	if v == "" {
		return false
	}
	if minVersion != "" {
		lo := canonical(minVersion)
		if lo == "" || semver.Compare(v, lo) < 0 {
			return false
		}
	}
	if maxVersion != "" {
		hi := canonical(maxVersion)
		if hi == "" || semver.Compare(v, hi) > 0 {
			return false
		}
	}
	return true
}

// canonical normalizes "1.2.3" to the "v1.2.3" form x/mod/semver expects and
// returns "" for unparseable versions.
func canonical(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// compareVersions orders by semantic version; parseable versions always rank
// above unparseable ones.
func compareVersions(a, b string) int {
	av, bv := canonical(a), canonical(b)
	switch {
	case av != "" && bv != "":
		return semver.Compare(av, bv)
	case av != "":
		return 1
	case bv != "":
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func (s *Service) rank(candidates []registrydomain.CBBCandidate) {
	recommendedFirst := s.plans.Get().RecommendedFirst
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if recommendedFirst && a.IsRecommended != b.IsRecommended {
			return a.IsRecommended
		}
		if cmp := compareVersions(a.Version, b.Version); cmp != 0 {
			return cmp > 0
		}
		return a.PriceCents < b.PriceCents
	})
}

func validateRequirement(req registrydomain.Requirement) error {
	if req.MinVersion != "" && canonical(req.MinVersion) == "" {
		return registrydomain.ErrInvalidRequirement
	}
	if req.MaxVersion != "" && canonical(req.MaxVersion) == "" {
		return registrydomain.ErrInvalidRequirement
	}
	return nil
}

func (s *Service) Search(ctx context.Context, req registrydomain.SearchRequest) ([]registrydomain.Candidate, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	candidates, err := s.resolveOne(ctx, registrydomain.Requirement{
		Name:       req.Query,
		Tags:       req.Tags,
		Simulators: req.Simulators,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Service) GetPopular(ctx context.Context, limit int) ([]registrydomain.Candidate, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	if cached, ok := s.popular.Get(ctx, limit); ok {
		return cached, nil
	}

	rows, err := s.repo.FindPopular(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	views := toViews(rows)
	s.popular.Set(ctx, limit, views)
	return views, nil
}

func (s *Service) GetExact(ctx context.Context, cbbID, version string) (*registrydomain.CBBCandidate, error) {
	cbbID = strings.TrimSpace(cbbID)
	version = strings.TrimSpace(version)
	if cbbID == "" || version == "" {
		return nil, registrydomain.ErrCandidateNotFound
	}
	return s.repo.FindExact(ctx, s.db, cbbID, version)
}

func (s *Service) RecordPurchasesTx(ctx context.Context, tx *gorm.DB, items []registrydomain.ItemRef) error {
	for _, item := range items {
		if err := s.repo.IncrementPurchaseCount(ctx, tx, item.CBBID, item.Version); err != nil {
			return err
		}
	}
	return nil
}

func toViews(rows []registrydomain.CBBCandidate) []registrydomain.Candidate {
	out := make([]registrydomain.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, toView(&row))
	}
	return out
}

func toView(row *registrydomain.CBBCandidate) registrydomain.Candidate {
	return registrydomain.Candidate{
		CBBID:       row.CBBID,
		Version:     row.Version,
		Name:        row.Name,
		Description: row.Description,
		Tags:        append([]string(nil), row.Tags...),
		PriceUSD:    money.FormatCents(row.PriceCents),
		Entrypoints: registrydomain.Entrypoints{
			RTLTop:       row.RTLTop,
			TestbenchTop: row.TestbenchTop,
		},
		Simulators:    append([]string(nil), row.Simulators...),
		IsRecommended: row.IsRecommended,
		FileSize:      row.FileSize,
	}
}
