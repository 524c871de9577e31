package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryGathersRegisteredCollectors(t *testing.T) {
	FramesSent.WithLabelValues("data").Inc()
	QuorumOutcomes.WithLabelValues("approved").Inc()

	families, err := Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var sawFramesSent bool
	for _, fam := range families {
		if fam.GetName() == "dcmx_frames_sent_total" {
			sawFramesSent = true
		}
	}
	require.True(t, sawFramesSent)
}
