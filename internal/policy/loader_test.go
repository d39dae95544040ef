package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argus/internal/contracts"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	pol, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotNil(t, pol)

	h, err := pol.Horizon("medium")
	require.NoError(t, err)
	assert.Equal(t, contracts.Timeframe1h, h.Resolution)
}

func TestLoad_ValidFile(t *testing.T) {
	yaml := `
horizons:
  - name: medium
    maturation: 8h
    forward_candles: 8
    resolution: 1h
    noise_threshold_pct: 0.5
bucket_edges: [0, 3, 6, 8, 10]
min_bucket_samples: 10
min_group_samples: 5
wait_effectiveness_threshold: 0.8
score_margin_contradiction: 1.0
`
	path := filepath.Join(t.TempDir(), "evaluation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	pol, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, pol.Horizons, 1)
	assert.Equal(t, 0.5, pol.Horizons[0].NoiseThresholdPct)
}

func TestLoad_UnknownFieldFails(t *testing.T) {
	yaml := `
horizons:
  - name: medium
    maturation: 8h
    forward_candles: 8
    resolution: 1h
    noise_threshold_pct: 0.5
bucket_edges: [0, 3, 6, 8, 10]
min_bucket_samples: 10
min_group_samples: 5
wait_effectiveness_threshold: 0.8
score_margin_contradiction: 1.0
typo_field: true
`
	path := filepath.Join(t.TempDir(), "evaluation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	pol := Default()
	require.NoError(t, Validate(pol))

	bad := Default()
	bad.BucketEdges = []float64{0, 6, 3, 10}
	assert.Error(t, Validate(bad))

	bad = Default()
	bad.Horizons[0].NoiseThresholdPct = 0
	assert.Error(t, Validate(bad))

	bad = Default()
	bad.Horizons = append(bad.Horizons, bad.Horizons[0])
	assert.Error(t, Validate(bad), "duplicate horizon names must fail")
}

// Every confidence value in [0,10] falls in exactly one bucket.
func TestBucketIndex_Exhaustive(t *testing.T) {
	pol := Default()

	for c := 0.0; c <= 10.0; c += 0.05 {
		idx := pol.BucketIndex(c)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, pol.BucketCount())

		lo := pol.BucketEdges[idx]
		hi := pol.BucketEdges[idx+1]
		if idx == pol.BucketCount()-1 {
			assert.True(t, c >= lo && c <= hi, "confidence %v escaped final bucket [%v,%v]", c, lo, hi)
		} else {
			assert.True(t, c >= lo && c < hi, "confidence %v escaped bucket [%v,%v)", c, lo, hi)
		}
	}

	// Boundary values
	assert.Equal(t, 0, pol.BucketIndex(0))
	assert.Equal(t, 1, pol.BucketIndex(3))
	assert.Equal(t, pol.BucketCount()-1, pol.BucketIndex(10))
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := Hash(Default())
	require.NoError(t, err)
	h2, err := Hash(Default())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := Default()
	changed.MinGroupSamples = 99
	h3, err := Hash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
