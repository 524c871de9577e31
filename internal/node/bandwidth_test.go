package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

func TestRewardScoreZeroWhenIdle(t *testing.T) {
	b := NewBandwidthCounters(time.Unix(0, 0))
	require.Zero(t, b.RewardScore())
}

func TestRewardScoreFullyUtilized(t *testing.T) {
	b := NewBandwidthCounters(time.Unix(0, 0))
	b.Tick(24 * time.Hour)
	b.RecordUpload(frame.NodeID("peer-1"), 100*1024*1024)
	for i := 0; i < 50; i++ {
		b.RecordUpload(frame.NodeID(fmt.Sprintf("peer-%d", i)), 0)
	}
	require.InDelta(t, 1.0, b.RewardScore(), 0.01)
}

func TestRewardScoreClampsAboveNorms(t *testing.T) {
	b := NewBandwidthCounters(time.Unix(0, 0))
	b.Tick(48 * time.Hour)
	b.RecordUpload(frame.NodeID("peer-1"), 500*1024*1024)
	require.InDelta(t, 0.8, b.RewardScore(), 0.01)
}

func TestRewardScoreWeightsBlend(t *testing.T) {
	b := NewBandwidthCounters(time.Unix(0, 0))
	b.Tick(12 * time.Hour) // uptime factor 0.5 -> weighted 0.25
	b.RecordUpload(frame.NodeID("peer-1"), 50*1024*1024) // bandwidth factor 0.5 -> weighted 0.15
	require.InDelta(t, 0.40, b.RewardScore(), 0.01)
}

func TestResetClosesPeriodAndStartsNew(t *testing.T) {
	b := NewBandwidthCounters(time.Unix(0, 0))
	b.RecordUpload(frame.NodeID("peer-1"), 1024)
	b.RecordDownload(2048)
	b.Tick(time.Minute)

	bytesUp, bytesDown, uptimeSeconds, peers := b.Reset(time.Unix(100, 0))
	require.EqualValues(t, 1024, bytesUp)
	require.EqualValues(t, 2048, bytesDown)
	require.EqualValues(t, 60, uptimeSeconds)
	require.Equal(t, 1, peers)

	require.Zero(t, b.RewardScore())
}
