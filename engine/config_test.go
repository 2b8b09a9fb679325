package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParamsDefaults(t *testing.T) {
	p, err := LoadParams("")
	require.NoError(t, err)
	assert.Equal(t, DefaultParams().MovementDwell, p.MovementDwell)
	assert.Equal(t, DefaultParams().WalkingThreshold, p.WalkingThreshold)
	assert.Equal(t, 2.1, p.Multiplier(Sand))
	assert.Equal(t, 1.0, p.Multiplier(Pavement))
}

func TestLoadParamsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ruck.yaml")
	cfg := `movement_dwell: 6s
walking_threshold_mps: 0.6
tier_hold: 45s
terrain_multipliers:
  sand: 2.4
  snow: 2.8
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, p.MovementDwell)
	assert.Equal(t, 0.6, p.WalkingThreshold)
	assert.Equal(t, 45*time.Second, p.TierHold)
	assert.Equal(t, 2.4, p.Multiplier(Sand))
	assert.Equal(t, 2.8, p.Multiplier(Snow))
	// Untouched surfaces keep their defaults.
	assert.Equal(t, 1.2, p.Multiplier(Trail))
	assert.Equal(t, DefaultParams().JoggingThreshold, p.JoggingThreshold)
}

func TestLoadParamsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ruck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("walking_threshold_mps: 9.0\n"), 0o644))

	_, err := LoadParams(path)
	assert.Error(t, err, "thresholds must stay strictly increasing")
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero dwell", func(p *Params) { p.MovementDwell = 0 }},
		{"inverted thresholds", func(p *Params) { p.JoggingThreshold = 0.1 }},
		{"zero grade clamp", func(p *Params) { p.GradeClampPct = 0 }},
		{"huge grade clamp", func(p *Params) { p.GradeClampPct = 150 }},
		{"zero override bound", func(p *Params) { p.MaxOverride = 0 }},
		{"zero reorder window", func(p *Params) { p.ReorderWindow = 0 }},
		{"bad pandolf", func(p *Params) { p.PandolfK1 = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
	assert.NoError(t, DefaultParams().Validate())
}
