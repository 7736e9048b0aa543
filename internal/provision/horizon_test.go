package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureHorizon_ThreeMonthsAscending(t *testing.T) {
	cluster := newFakeCluster()
	p, err := New(cluster, cluster, cluster, testOptions())
	require.NoError(t, err)

	outcomes, err := p.EnsureHorizon(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		2,
	)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	wantNames := []string{
		"viewing_events_2024_01",
		"viewing_events_2024_02",
		"viewing_events_2024_03",
	}
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		require.True(t, o.Result.Created)
		require.Equal(t, wantNames[i], o.Result.PartitionName)
	}
}

func TestEnsureHorizon_ReversedRangeYieldsNoCalls(t *testing.T) {
	cluster := newFakeCluster()
	p, err := New(cluster, cluster, cluster, testOptions())
	require.NoError(t, err)

	outcomes, err := p.EnsureHorizon(context.Background(),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		4,
	)
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Empty(t, cluster.leafCreateCalls)
}

func TestEnsureHorizon_OneBadMonthDoesNotBlockOthers(t *testing.T) {
	cluster := newFakeCluster()
	cluster.failLeaf["viewing_events_2024_02_p0"] = errors.New("tablespace offline")

	p, err := New(cluster, cluster, cluster, testOptions())
	require.NoError(t, err)

	outcomes, err := p.EnsureHorizon(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		1,
	)
	require.Error(t, err)
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	require.True(t, outcomes[0].Result.Created)

	var partial *PartialProvisionError
	require.ErrorAs(t, outcomes[1].Err, &partial)

	// March still provisioned despite February failing.
	require.NoError(t, outcomes[2].Err)
	require.True(t, outcomes[2].Result.Created)

	// The joined error mentions the failed partition.
	require.Contains(t, err.Error(), "viewing_events_2024_02")
}

func TestEnsureHorizon_IdempotentAcrossRuns(t *testing.T) {
	cluster := newFakeCluster()
	p, err := New(cluster, cluster, cluster, testOptions())
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	first, err := p.EnsureHorizon(context.Background(), from, to, 4)
	require.NoError(t, err)
	second, err := p.EnsureHorizon(context.Background(), from, to, 4)
	require.NoError(t, err)

	for i := range first {
		require.True(t, first[i].Result.Created)
		require.False(t, second[i].Result.Created)
	}
}
