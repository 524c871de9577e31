package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.Equal(t, 4, c.QuorumSize)
	require.Equal(t, 3, c.ApprovalThreshold)
	require.NotNil(t, c.Logger())
	require.NotNil(t, c.Clock())
}

func TestConfigOptionsOverrideDefaults(t *testing.T) {
	c := NewConfig(
		WithMaxTTL(5),
		WithQuorum(6, 4),
		WithRouteLifetime(10*time.Second),
	)
	require.EqualValues(t, 5, c.MaxTTL)
	require.Equal(t, 6, c.QuorumSize)
	require.Equal(t, 4, c.ApprovalThreshold)
	require.Equal(t, 10*time.Second, c.RouteLifetime)

	rc := c.RoutingConfig()
	require.EqualValues(t, 5, rc.MaxTTL)

	qc := c.QuorumConfig()
	require.Equal(t, 6, qc.QuorumSize)
}

func TestFileConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")

	fc := &FileConfig{
		SecretHex:             "aabbcc",
		Lat:                   37.0,
		Lon:                   -122.0,
		RouteLifetimeSeconds:  120,
		BeaconIntervalSeconds: 30,
		MaxTTL:                8,
		RetryTimeoutSeconds:   1.5,
		BackoffFactor:         2.0,
		MaxRetries:            4,
		QuorumSize:            5,
		ApprovalThreshold:     3,
		ProofDifficultyBits:   16,
		RingSize:              12,
	}
	require.NoError(t, SaveFile(path, fc))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, fc.SecretHex, loaded.SecretHex)
	require.Equal(t, fc.MaxTTL, loaded.MaxTTL)

	opts := loaded.ToOptions()
	c := NewConfig(opts...)
	require.Equal(t, 120*time.Second, c.RouteLifetime)
	require.Equal(t, 30*time.Second, c.BeaconInterval)
	require.EqualValues(t, 8, c.MaxTTL)
	require.Equal(t, 5, c.QuorumSize)
	require.Equal(t, 16, c.ProofDifficultyBits)
}
