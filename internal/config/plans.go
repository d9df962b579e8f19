package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes a subscription tier's monthly allowance.
type Plan struct {
	Name                 string `mapstructure:"name"`
	IncludedCents        int64  `mapstructure:"includedCents"`
	DefaultOnDemandLimit *int64 `mapstructure:"defaultOnDemandLimitCents"`
}

// PlanConfig is the hot-reloadable policy surface: plan quotas plus the
// behaviors the product deliberately keeps configurable.
type PlanConfig struct {
	Plans []Plan `mapstructure:"plans"`

	// OnDemandResetsMonthly clears the overage bucket at period reset when
	// true; otherwise overage persists until cleared by the billing
	// collaborator.
	OnDemandResetsMonthly bool `mapstructure:"onDemandResetsMonthly"`

	// RecommendedFirst puts recommended candidates ahead of version order
	// during resolution ranking.
	RecommendedFirst bool `mapstructure:"recommendedFirst"`

	// IncludedLowFraction triggers an allowance alert when the remaining
	// included balance drops below this fraction of the total.
	IncludedLowFraction float64 `mapstructure:"includedLowFraction"`

	// OnDemandWarnFraction triggers an overage alert when on-demand spend
	// crosses this fraction of its cap.
	OnDemandWarnFraction float64 `mapstructure:"onDemandWarnFraction"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Plans: []Plan{
			{Name: "basic", IncludedCents: 2_000, DefaultOnDemandLimit: int64Ptr(0)},
			{Name: "pro", IncludedCents: 10_000, DefaultOnDemandLimit: int64Ptr(50_000)},
			{Name: "enterprise", IncludedCents: 100_000, DefaultOnDemandLimit: nil},
		},
		OnDemandResetsMonthly: false,
		RecommendedFirst:      true,
		IncludedLowFraction:   0.1,
		OnDemandWarnFraction:  0.8,
	}
}

func int64Ptr(v int64) *int64 { return &v }

// PlanConfigHolder exposes the current plan policy and swaps it atomically
// on config file changes.
type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cbbstore/config")
	v.AddConfigPath("/etc/cbbstore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CBBSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlanConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("billing.plans", defaults.Plans)
		v.SetDefault("billing.onDemandResetsMonthly", defaults.OnDemandResetsMonthly)
		v.SetDefault("billing.recommendedFirst", defaults.RecommendedFirst)
		v.SetDefault("billing.includedLowFraction", defaults.IncludedLowFraction)
		v.SetDefault("billing.onDemandWarnFraction", defaults.OnDemandWarnFraction)
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

// NewStaticPlanConfigHolder wraps a fixed PlanConfig, for tests.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// PlanQuota returns the included allowance for a plan name.
func (h *PlanConfigHolder) PlanQuota(name string) (Plan, bool) {
	for _, p := range h.Get().Plans {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Plan{}, false
}

var (
	errNoPlans          = errors.New("plan config: at least one plan is required")
	errEmptyPlanName    = errors.New("plan config: plan name must not be empty")
	errNegativeQuota    = errors.New("plan config: included allowance must not be negative")
	errInvalidFraction  = errors.New("plan config: alert fractions must be in [0, 1]")
	errDuplicatePlan    = errors.New("plan config: duplicate plan name")
	errNegativeOnDemand = errors.New("plan config: on-demand limit must not be negative")
)

func validatePlanConfig(cfg PlanConfig) error {
	if len(cfg.Plans) == 0 {
		return errNoPlans
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, p := range cfg.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return errEmptyPlanName
		}
		if _, ok := seen[name]; ok {
			return errDuplicatePlan
		}
		seen[name] = struct{}{}
		if p.IncludedCents < 0 {
			return errNegativeQuota
		}
		if p.DefaultOnDemandLimit != nil && *p.DefaultOnDemandLimit < 0 {
			return errNegativeOnDemand
		}
	}
	if cfg.IncludedLowFraction < 0 || cfg.IncludedLowFraction > 1 ||
		cfg.OnDemandWarnFraction < 0 || cfg.OnDemandWarnFraction > 1 {
		return errInvalidFraction
	}
	return nil
}
