// Package config loads the runtime configuration via viper (env + YAML),
// following the teacher's spf13/viper dependency, and exposes a hot-reload
// hook for the policy-sensitive subset (the Registry's PolicyView, read on
// every policy-sensitive op per spec §5).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SchedulerDefaults seeds the scheduler runtime (§4.2).
type SchedulerDefaults struct {
	GlobalSlots     int           `mapstructure:"global_slots" yaml:"global_slots"`
	DefaultPriority string        `mapstructure:"default_priority" yaml:"default_priority"`
	DefaultMaxRetry int           `mapstructure:"default_max_retry" yaml:"default_max_retry"`
	DefaultBackoff  time.Duration `mapstructure:"default_backoff" yaml:"default_backoff"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
}

// PolicySnapshot is the serializable form of registry policy. The Registry
// package defines the live PolicyView; callers translate a PolicySnapshot
// into one at wiring time to keep config decoupled from registry.
type PolicySnapshot struct {
	AllowMultiplePages bool `mapstructure:"allow_multiple_pages" yaml:"allow_multiple_pages"`
}

// StateCenterConfig sizes the bounded ring buffers (§4.4).
type StateCenterConfig struct {
	GlobalCapacity int `mapstructure:"global_capacity" yaml:"global_capacity"`
}

// StageAuditorConfig holds the guardrail keyword set and the blocked/
// fallback search-engine table. The normalizer and the stage auditor do not
// read it; they use the built-in tables in internal/plan/context.go.
type StageAuditorConfig struct {
	GuardrailKeywords    []string `mapstructure:"guardrail_keywords" yaml:"guardrail_keywords"`
	AllowedDomains       []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	BlockedSearchEngines []string `mapstructure:"blocked_search_engines" yaml:"blocked_search_engines"`
	FallbackSearchURL    string   `mapstructure:"fallback_search_url" yaml:"fallback_search_url"`
	ResultSeekingWords   []string `mapstructure:"result_seeking_words" yaml:"result_seeking_words"`
}

// PlanCacheConfig sizes the LLM plan cache (Design Notes §9).
type PlanCacheConfig struct {
	LRUSize   int           `mapstructure:"lru_size" yaml:"lru_size"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
}

// RuntimeConfig is the fully resolved configuration for one process.
type RuntimeConfig struct {
	Scheduler    SchedulerDefaults  `mapstructure:"scheduler" yaml:"scheduler"`
	Policy       PolicySnapshot     `mapstructure:"policy" yaml:"policy"`
	StateCenter  StateCenterConfig  `mapstructure:"state_center" yaml:"state_center"`
	StageAuditor StageAuditorConfig `mapstructure:"stage_auditor" yaml:"stage_auditor"`
	PlanCache    PlanCacheConfig    `mapstructure:"plan_cache" yaml:"plan_cache"`
}

// Defaults returns a RuntimeConfig with the values the teacher's own
// runtime_config.go uses as fallbacks: a handful of global slots, linear
// backoff, Baidu as the configured fallback search engine.
func Defaults() RuntimeConfig {
	return RuntimeConfig{
		Scheduler: SchedulerDefaults{
			GlobalSlots:     4,
			DefaultPriority: "standard",
			DefaultMaxRetry: 2,
			DefaultBackoff:  200 * time.Millisecond,
			DefaultTimeout:  30 * time.Second,
		},
		Policy: PolicySnapshot{AllowMultiplePages: true},
		StateCenter: StateCenterConfig{
			GlobalCapacity: 1024,
		},
		StageAuditor: StageAuditorConfig{
			GuardrailKeywords:    []string{},
			AllowedDomains:       []string{},
			BlockedSearchEngines: []string{"google.", "bing."},
			FallbackSearchURL:    "https://www.baidu.com/s?wd=",
			ResultSeekingWords:   []string{"告诉", "结果", "weather", "多少", "how much", "what is"},
		},
		PlanCache: PlanCacheConfig{
			LRUSize: 256,
			TTL:     10 * time.Minute,
		},
	}
}

// Loader wraps a viper instance pre-seeded with Defaults() and optionally
// bound to a config file + environment prefix.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader. configPath may be empty (defaults only + env).
func NewLoader(configPath string, envPrefix string) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v, Defaults())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}
	return &Loader{v: v}, nil
}

func setDefaults(v *viper.Viper, d RuntimeConfig) {
	v.SetDefault("scheduler.global_slots", d.Scheduler.GlobalSlots)
	v.SetDefault("scheduler.default_priority", d.Scheduler.DefaultPriority)
	v.SetDefault("scheduler.default_max_retry", d.Scheduler.DefaultMaxRetry)
	v.SetDefault("scheduler.default_backoff", d.Scheduler.DefaultBackoff)
	v.SetDefault("scheduler.default_timeout", d.Scheduler.DefaultTimeout)
	v.SetDefault("policy.allow_multiple_pages", d.Policy.AllowMultiplePages)
	v.SetDefault("state_center.global_capacity", d.StateCenter.GlobalCapacity)
	v.SetDefault("stage_auditor.guardrail_keywords", d.StageAuditor.GuardrailKeywords)
	v.SetDefault("stage_auditor.allowed_domains", d.StageAuditor.AllowedDomains)
	v.SetDefault("stage_auditor.blocked_search_engines", d.StageAuditor.BlockedSearchEngines)
	v.SetDefault("stage_auditor.fallback_search_url", d.StageAuditor.FallbackSearchURL)
	v.SetDefault("stage_auditor.result_seeking_words", d.StageAuditor.ResultSeekingWords)
	v.SetDefault("plan_cache.lru_size", d.PlanCache.LRUSize)
	v.SetDefault("plan_cache.ttl", d.PlanCache.TTL)
	v.SetDefault("plan_cache.redis_addr", d.PlanCache.RedisAddr)
}

// Load unmarshals the current viper state into a RuntimeConfig.
func (l *Loader) Load() (RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// WatchPolicy installs a viper.OnConfigChange hook that re-reads the policy
// subtree and invokes onChange with the new snapshot. Only meaningful when
// NewLoader was given a configPath. Mirrors spec §5's "Policy view: ...
// written rarely (policy reload)".
func (l *Loader) WatchPolicy(onChange func(PolicySnapshot)) {
	l.v.WatchConfig()
	l.v.OnConfigChange(func(_ interface{}) {
		cfg, err := l.Load()
		if err != nil {
			return
		}
		onChange(cfg.Policy)
	})
}
