// Package config collects the tunables scattered across internal/routing,
// internal/ratelimit, and internal/quorum into one functional-options
// Config, and an on-disk TOML representation for the CLI entrypoint.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/quorum"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/ratelimit"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/routing"
)

// ConfigOption applies one setting to a Config.
type ConfigOption func(*Config)

// Config holds all tunables a Node needs to run: routing timing, the
// retransmit schedule, rate limits, and quorum thresholds.
type Config struct {
	RouteLifetime    time.Duration
	BeaconInterval   time.Duration
	MaxTTL           uint8
	DiscoveryTimeout time.Duration

	RetryTimeout  time.Duration
	BackoffFactor float64
	MaxRetries    int

	DefaultRateLimit ratelimit.Limit

	QuorumSize        int
	ApprovalThreshold int

	ProofDifficultyBits int
	RingSize            int

	logger log.Logger
	clock  clockwork.Clock
}

// NewConfig returns a Config with defaults matching each subsystem's
// package-level defaults, overridden by opts.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		RouteLifetime:    routing.DefaultRouteLifetime,
		BeaconInterval:   routing.DefaultBeaconInterval,
		MaxTTL:           routing.DefaultMaxTTL,
		DiscoveryTimeout: routing.DefaultDiscoveryTimeout,

		RetryTimeout:  ratelimit.DefaultRetryTimeout,
		BackoffFactor: ratelimit.DefaultBackoffFactor,
		MaxRetries:    ratelimit.DefaultMaxRetries,

		DefaultRateLimit: ratelimit.Limit{Max: 20, Window: time.Minute},

		QuorumSize:        quorum.DefaultQuorumSize,
		ApprovalThreshold: quorum.DefaultApprovalThreshold,

		ProofDifficultyBits: 20,
		RingSize:            10,

		logger: log.DefaultLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the configured logger.
func (c *Config) Logger() log.Logger { return c.logger }

// Clock returns the configured clock.
func (c *Config) Clock() clockwork.Clock { return c.clock }

// RoutingConfig projects the routing-relevant fields into a
// routing.Config.
func (c *Config) RoutingConfig() routing.Config {
	return routing.Config{
		RouteLifetime:    c.RouteLifetime,
		BeaconInterval:   c.BeaconInterval,
		MaxTTL:           c.MaxTTL,
		DiscoveryTimeout: c.DiscoveryTimeout,
	}
}

// QuorumConfig projects the quorum-relevant fields into a quorum.Config.
func (c *Config) QuorumConfig() quorum.Config {
	return quorum.Config{
		QuorumSize:        c.QuorumSize,
		ApprovalThreshold: c.ApprovalThreshold,
	}
}

func WithLogger(l log.Logger) ConfigOption {
	return func(c *Config) { c.logger = l }
}

func WithClock(clock clockwork.Clock) ConfigOption {
	return func(c *Config) { c.clock = clock }
}

func WithRouteLifetime(d time.Duration) ConfigOption {
	return func(c *Config) { c.RouteLifetime = d }
}

func WithBeaconInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.BeaconInterval = d }
}

func WithMaxTTL(ttl uint8) ConfigOption {
	return func(c *Config) { c.MaxTTL = ttl }
}

func WithDiscoveryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.DiscoveryTimeout = d }
}

func WithRetransmitSchedule(retryTimeout time.Duration, backoffFactor float64, maxRetries int) ConfigOption {
	return func(c *Config) {
		c.RetryTimeout = retryTimeout
		c.BackoffFactor = backoffFactor
		c.MaxRetries = maxRetries
	}
}

func WithDefaultRateLimit(limit ratelimit.Limit) ConfigOption {
	return func(c *Config) { c.DefaultRateLimit = limit }
}

func WithQuorum(size, threshold int) ConfigOption {
	return func(c *Config) {
		c.QuorumSize = size
		c.ApprovalThreshold = threshold
	}
}

func WithProofParameters(difficultyBits, ringSize int) ConfigOption {
	return func(c *Config) {
		c.ProofDifficultyBits = difficultyBits
		c.RingSize = ringSize
	}
}

// FileConfig is the on-disk TOML shape loaded by the CLI entrypoint: node
// identity seed plus the subset of Config tunables worth persisting.
type FileConfig struct {
	SecretHex string `toml:"secret_hex"`
	Lat       float64 `toml:"lat"`
	Lon       float64 `toml:"lon"`

	RouteLifetimeSeconds  int64 `toml:"route_lifetime_seconds"`
	BeaconIntervalSeconds int64 `toml:"beacon_interval_seconds"`
	MaxTTL                uint8 `toml:"max_ttl"`

	RetryTimeoutSeconds float64 `toml:"retry_timeout_seconds"`
	BackoffFactor       float64 `toml:"backoff_factor"`
	MaxRetries          int     `toml:"max_retries"`

	QuorumSize        int `toml:"quorum_size"`
	ApprovalThreshold int `toml:"approval_threshold"`

	ProofDifficultyBits int `toml:"proof_difficulty_bits"`
	RingSize            int `toml:"ring_size"`
}

// LoadFile reads a FileConfig from path.
func LoadFile(path string) (*FileConfig, error) {
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &fc, nil
}

// SaveFile writes fc to path in TOML form, creating or truncating it.
func SaveFile(path string, fc *FileConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}
	return nil
}

// ToOptions converts a loaded FileConfig into ConfigOptions applying its
// non-zero fields.
func (fc *FileConfig) ToOptions() []ConfigOption {
	var opts []ConfigOption
	if fc.RouteLifetimeSeconds > 0 {
		opts = append(opts, WithRouteLifetime(time.Duration(fc.RouteLifetimeSeconds)*time.Second))
	}
	if fc.BeaconIntervalSeconds > 0 {
		opts = append(opts, WithBeaconInterval(time.Duration(fc.BeaconIntervalSeconds)*time.Second))
	}
	if fc.MaxTTL > 0 {
		opts = append(opts, WithMaxTTL(fc.MaxTTL))
	}
	if fc.RetryTimeoutSeconds > 0 && fc.BackoffFactor > 0 && fc.MaxRetries > 0 {
		opts = append(opts, WithRetransmitSchedule(
			time.Duration(fc.RetryTimeoutSeconds*float64(time.Second)),
			fc.BackoffFactor,
			fc.MaxRetries,
		))
	}
	if fc.QuorumSize > 0 && fc.ApprovalThreshold > 0 {
		opts = append(opts, WithQuorum(fc.QuorumSize, fc.ApprovalThreshold))
	}
	if fc.ProofDifficultyBits > 0 && fc.RingSize > 0 {
		opts = append(opts, WithProofParameters(fc.ProofDifficultyBits, fc.RingSize))
	}
	return opts
}
