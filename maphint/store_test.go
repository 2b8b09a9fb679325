package maphint

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lelanhus/ruckcore/engine"
)

func TestStorePutAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(47.36, 8.54, "gravel"))
	require.NoError(t, s.Put(47.40, 8.60, "sand"))

	typ, ok := s.SurfaceAt(47.36, 8.54)
	require.True(t, ok)
	assert.Equal(t, engine.Gravel, typ)

	typ, ok = s.SurfaceAt(47.40, 8.60)
	require.True(t, ok)
	assert.Equal(t, engine.Sand, typ)
}

func TestStoreCellGranularity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(47.36, 8.54, "trail"))

	// Any point inside the same level-16 cell resolves to the stored row.
	center := s2.CellIDFromLatLng(s2.LatLngFromDegrees(47.36, 8.54)).Parent(CellLevel).LatLng()
	typ, ok := s.SurfaceAt(center.Lat.Degrees(), center.Lng.Degrees())
	require.True(t, ok)
	assert.Equal(t, engine.Trail, typ)

	// A kilometre away does not.
	_, ok = s.SurfaceAt(47.37, 8.56)
	assert.False(t, ok)
}

func TestStoreUnknownSurfaceName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(47.0, 8.0, "lava"))
	_, ok := s.SurfaceAt(47.0, 8.0)
	assert.False(t, ok, "an unmapped surface name yields no hint")
}

func TestAvailable(t *testing.T) {
	assert.False(t, Available(""))
	assert.False(t, Available(filepath.Join(t.TempDir(), "absent.db")))

	path := filepath.Join(t.TempDir(), "hints.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.Close()
	assert.True(t, Available(path))
}
