package config

import (
	"os"
	"path/filepath"
	"testing"

	imgpkg "manual-align/internal/image"
	"manual-align/internal/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, imgpkg.InterpBilinear, cfg.Interp())
	assert.Equal(t, BackendGo, cfg.Backend)
	assert.Equal(t, project.CropRegion{X: 0, Y: 0, Width: 100, Height: 100}, cfg.Crop)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "align.toml", `
interpolation = "nearest"
log_level = "debug"

[crop]
x = -10
y = 5.5
width = 300
height = 200
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, imgpkg.InterpNearest, cfg.Interp())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, project.CropRegion{X: -10, Y: 5.5, Width: 300, Height: 200}, cfg.Crop)
	// Untouched fields keep defaults.
	assert.Equal(t, BackendGo, cfg.Backend)
	assert.Equal(t, "_trace", cfg.ReferenceSuffix)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "align.yml", `
backend: opencv
reference_suffix: _ref
crop:
  width: 64
  height: 32
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendOpenCV, cfg.Backend)
	assert.Equal(t, "_ref", cfg.ReferenceSuffix)
	assert.Equal(t, project.CropRegion{Width: 64, Height: 32}, cfg.Crop)
	assert.Equal(t, imgpkg.InterpBilinear, cfg.Interp())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		is      error
	}{
		{"unsupported extension", "align.json", `{}`, ErrUnsupportedFormat},
		{"bad toml", "align.toml", `interpolation = `, nil},
		{"bad interpolation", "align.toml", `interpolation = "lanczos"`, nil},
		{"bad backend", "align.yaml", `backend: cuda`, nil},
		{"negative crop", "align.yaml", "crop:\n  width: -1\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
