package project

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"manual-align/internal/correspondence"
	"manual-align/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePoints(t *testing.T) (ref, raw correspondence.PointSet) {
	t.Helper()
	s := correspondence.NewStore()
	require.NoError(t, s.SetPoint(correspondence.RoleReference, 1, geometry.NewPoint2D(10, 10)))
	require.NoError(t, s.SetPoint(correspondence.RoleReference, 2, geometry.NewPoint2D(80.25, 12)))
	require.NoError(t, s.SetPoint(correspondence.RoleReference, 4, geometry.NewPoint2D(40, 70.5)))
	require.NoError(t, s.SetPoint(correspondence.RoleRaw, 1, geometry.NewPoint2D(0, 5)))
	require.NoError(t, s.SetPoint(correspondence.RoleRaw, 2, geometry.NewPoint2D(70.25, 2)))
	require.NoError(t, s.SetPoint(correspondence.RoleRaw, 5, geometry.NewPoint2D(3, 4)))
	return s.PointSet(correspondence.RoleReference), s.PointSet(correspondence.RoleRaw)
}

func TestWriteFormat(t *testing.T) {
	ref, raw := samplePoints(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ref, raw, CropRegion{X: -5, Y: 2.5, Width: 60, Height: 40}))

	want := strings.Join([]string{
		"-5.0,2.5,60.0,40.0",
		"10.0,10.0,0.0,5.0",
		"80.25,12.0,70.25,2.0",
		"0.0,0.0,0.0,0.0",
		"40.0,70.5,0.0,0.0",
		"0.0,0.0,3.0,4.0",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ref, raw := samplePoints(t)
	crop := CropRegion{X: -12, Y: 3, Width: 250, Height: 125.5}
	path := filepath.Join(t.TempDir(), "points.csv")

	require.NoError(t, Save(path, ref, raw, crop))
	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, crop, file.Crop)
	assert.Equal(t, ref, file.Reference)
	assert.Equal(t, raw, file.Raw)
}

func TestOriginPointDoesNotSurviveFile(t *testing.T) {
	var ref, raw correspondence.PointSet
	ref[0] = correspondence.Point{Set: true}
	raw[0] = correspondence.Point{Set: true}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ref, raw, DefaultCropRegion))
	file, err := Read(&buf)
	require.NoError(t, err)
	assert.False(t, file.Reference[0].Set)
	assert.False(t, file.Raw[0].Set)
}

func TestReadAcceptsIntegers(t *testing.T) {
	in := "0,0,100,100\n1,2,3,4\n0,0,0,0\n0,0,0,0\n0,0,0,0\n0,0,0,0\n"
	file, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, DefaultCropRegion, file.Crop)
	assert.Equal(t, 1, file.Reference.Count())
	assert.Equal(t, geometry.NewPoint2D(3, 4), file.Raw[0].Point2D)
}

func TestReadMalformed(t *testing.T) {
	rows := func(lines ...string) string { return strings.Join(lines, "\n") + "\n" }
	zero := "0,0,0,0"

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too few records", rows("0,0,100,100", zero, zero)},
		{"too many records", rows("0,0,100,100", zero, zero, zero, zero, zero, zero)},
		{"short record", rows("0,0,100", zero, zero, zero, zero, zero)},
		{"long record", rows("0,0,100,100", zero, "1,2,3,4,5", zero, zero, zero)},
		{"not a number", rows("0,0,100,100", zero, zero, "1,x,3,4", zero, zero)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadSaveErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, ErrUnreadablePath)

	var ref, raw correspondence.PointSet
	err = Save(filepath.Join(dir, "no", "such", "points.csv"), ref, raw, DefaultCropRegion)
	assert.ErrorIs(t, err, ErrWriteFailure)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCropRegionRect(t *testing.T) {
	assert.Equal(t, geometry.NewRectInt(-3, 4, 10, 20), CropRegion{X: -3.7, Y: 4.9, Width: 10.6, Height: 20.2}.Rect())
	assert.Equal(t, geometry.NewRectInt(0, 0, 0, 0), CropRegion{Width: -5, Height: -1}.Rect())
}

func TestDefaultPointsPath(t *testing.T) {
	assert.Equal(t, "out/raw_aligned.csv", DefaultPointsPath("out/raw_aligned.png"))
	assert.Equal(t, "scan.csv", DefaultPointsPath("scan"))
	assert.Equal(t, "", DefaultPointsPath(""))
}
