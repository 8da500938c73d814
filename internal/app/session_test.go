package app

import (
	"bytes"
	"errors"
	goimage "image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"manual-align/internal/alignment"
	"manual-align/internal/correspondence"
	"manual-align/internal/image"
	"manual-align/internal/project"
	"manual-align/pkg/geometry"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// memImages is an in-memory ImageStore.
type memImages struct {
	images   map[string]*goimage.Gray
	saved    map[string]goimage.Image
	failSave bool
}

func newMemImages() *memImages {
	return &memImages{images: map[string]*goimage.Gray{}, saved: map[string]goimage.Image{}}
}

func (m *memImages) Load(path string) (*image.Layer, error) {
	img, ok := m.images[path]
	if !ok {
		return nil, image.ErrUnreadablePath
	}
	return &image.Layer{Path: path, Image: img}, nil
}

func (m *memImages) Save(img goimage.Image, path string) error {
	if m.failSave {
		return errDiskFull
	}
	m.saved[path] = img
	return nil
}

// traceImage is a 100x100 reference with a black grid drawn over a gradient.
func traceImage() *goimage.Gray {
	img := goimage.NewGray(goimage.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8(30 + (x+2*y)%200)
			if x%17 == 0 || y%23 == 0 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// shifted returns an image whose pixel (x, y) is src(x+dx, y+dy), black
// where that falls outside src.
func shifted(src *goimage.Gray, dx, dy int) *goimage.Gray {
	b := src.Bounds()
	img := goimage.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sx, sy := x+dx, y+dy
			if sx < b.Dx() && sy < b.Dy() {
				img.SetGray(x, y, src.GrayAt(sx, sy))
			}
		}
	}
	return img
}

func newTestSession(t *testing.T, images ImageStore) (*Session, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	return NewSession(Options{Logger: logger, Images: images}), &buf
}

func mustDispatch(t *testing.T, s *Session, lines ...string) {
	t.Helper()
	for _, line := range lines {
		cmd, err := ParseCommand(line)
		require.NoError(t, err, line)
		_, err = s.Dispatch(cmd)
		require.NoError(t, err, line)
	}
}

// loadedSession opens a reference and a raw image related by a (10, 5)
// translation and picks three matching points.
func loadedSession(t *testing.T) (*Session, *memImages, *goimage.Gray) {
	t.Helper()
	ref := traceImage()
	images := newMemImages()
	images.images["trace.png"] = ref
	images.images["raw.tif"] = shifted(ref, 10, 5)

	s, _ := newTestSession(t, images)
	mustDispatch(t, s,
		"open ref trace.png",
		"open raw raw.tif",
		"pick ref 1 30 25",
		"pick ref 2 80 35",
		"pick ref 3 50 85",
		"pick raw 1 20 20",
		"pick raw 2 70 30",
		"pick raw 3 40 80",
	)
	return s, images, ref
}

func TestAlignTranslationEndToEnd(t *testing.T) {
	s, _, ref := loadedSession(t)

	res, err := s.Dispatch(AlignRequested{})
	require.NoError(t, err)
	require.NotNil(t, res.Alignment)
	assert.Equal(t, alignment.KindAffine, res.Alignment.Kind)
	assert.False(t, res.Alignment.Suboptimal)
	assert.True(t, res.Alignment.Transform.ApproxEqual(geometry.Translation(10, 5), 1e-6),
		"transform %s", res.Alignment.Transform)

	warped := s.Warped()
	require.NotNil(t, warped)
	require.Equal(t, ref.Bounds(), warped.Bounds())

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			got := int(warped.GrayAt(x, y).Y)
			if x < 10 || y < 5 {
				require.Zero(t, got, "exposed border at (%d,%d)", x, y)
				continue
			}
			want := int(ref.GrayAt(x, y).Y)
			require.InDelta(t, want, got, 1, "pixel (%d,%d)", x, y)
		}
	}

	fused := s.Fused()
	require.NotNil(t, fused)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, fused.RGBAAt(34, 40), "trace line is red")
	v := warped.GrayAt(40, 40).Y
	assert.Equal(t, color.RGBA{R: v, G: v, B: v, A: 255}, fused.RGBAAt(40, 40))
}

func TestAlignTwoPointsIsSuboptimal(t *testing.T) {
	s, _, _ := loadedSession(t)
	var buf bytes.Buffer
	s.log = log.New(&buf)

	mustDispatch(t, s, "clear raw 3")
	res, err := s.Dispatch(AlignRequested{})
	require.NoError(t, err)
	assert.Equal(t, alignment.KindSimilarity, res.Alignment.Kind)
	assert.True(t, res.Alignment.Suboptimal)
	assert.Contains(t, buf.String(), "suboptimal")
}

func TestFailedAlignKeepsPreviousResult(t *testing.T) {
	s, _, _ := loadedSession(t)
	mustDispatch(t, s, "align")
	warped := s.Warped()
	require.NotNil(t, warped)

	mustDispatch(t, s, "clear raw")
	_, err := s.Dispatch(AlignRequested{})
	assert.ErrorIs(t, err, alignment.ErrInsufficientPoints)
	assert.Same(t, warped, s.Warped())
}

func TestAlignNeedsImages(t *testing.T) {
	s, _ := newTestSession(t, newMemImages())
	_, err := s.Dispatch(AlignRequested{})
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = s.Dispatch(OpenReference{Path: "missing.png"})
	assert.ErrorIs(t, err, image.ErrUnreadablePath)
	assert.Nil(t, s.Reference())
}

func TestPointPickUsesActiveSlot(t *testing.T) {
	s, _ := newTestSession(t, newMemImages())
	mustDispatch(t, s, "slot raw 4", "pick raw 12 13", "pick ref 7 8")

	assert.Equal(t, correspondence.Slot(4), s.ActiveSlot(correspondence.RoleRaw))
	assert.True(t, s.Points(correspondence.RoleRaw)[3].Set)
	assert.True(t, s.Points(correspondence.RoleReference)[0].Set)
	assert.Empty(t, s.OverlappingSlots())

	_, err := s.Dispatch(SelectSlot{Role: correspondence.RoleRaw, Slot: 6})
	assert.ErrorIs(t, err, correspondence.ErrInvalidSlot)
	assert.Equal(t, correspondence.Slot(4), s.ActiveSlot(correspondence.RoleRaw))
}

func TestClearPoints(t *testing.T) {
	s, _, _ := loadedSession(t)
	require.Len(t, s.OverlappingSlots(), 3)

	var events []interface{}
	s.On(EventPointsChanged, func(data interface{}) { events = append(events, data) })

	mustDispatch(t, s, "clear ref 2")
	assert.Equal(t, []correspondence.Slot{1, 3}, s.OverlappingSlots())

	mustDispatch(t, s, "clear all")
	assert.Zero(t, s.Points(correspondence.RoleReference).Count())
	assert.Zero(t, s.Points(correspondence.RoleRaw).Count())
	assert.Equal(t, []interface{}{correspondence.RoleReference, RoleAll}, events)
}

func TestCropLock(t *testing.T) {
	s, _ := newTestSession(t, newMemImages())
	assert.Equal(t, project.DefaultCropRegion, s.Crop())

	mustDispatch(t, s, "crop 5 6 70 80")
	assert.Equal(t, project.CropRegion{X: 5, Y: 6, Width: 70, Height: 80}, s.Crop())

	mustDispatch(t, s, "lock", "crop -20 -30 40 50")
	assert.True(t, s.CropLocked())
	assert.Equal(t, project.CropRegion{X: 5, Y: 6, Width: 40, Height: 50}, s.Crop())

	mustDispatch(t, s, "lock", "crop -20 -30 40 50")
	assert.Equal(t, project.CropRegion{X: -20, Y: -30, Width: 40, Height: 50}, s.Crop())

	_, err := s.Dispatch(CropRegionChanged{Region: project.CropRegion{Width: -1, Height: 4}})
	assert.Error(t, err)
	assert.Equal(t, project.CropRegion{X: -20, Y: -30, Width: 40, Height: 50}, s.Crop())
}

func TestExport(t *testing.T) {
	s, images, ref := loadedSession(t)
	mustDispatch(t, s, "crop -5 -5 50 40", "align")

	var exported *Result
	s.On(EventExported, func(data interface{}) { exported = data.(*Result) })

	res, err := s.Dispatch(ExportRequested{Target: "out/aligned.png", Cropped: true})
	require.NoError(t, err)
	assert.Same(t, res, exported)
	assert.Equal(t, "out/aligned.png", res.RawPath)
	assert.Equal(t, "out/aligned_trace.png", res.ReferencePath)
	assert.Equal(t, goimage.Rect(0, 0, 50, 40), res.Exported.Bounds())

	refOut := images.saved["out/aligned_trace.png"].(*goimage.Gray)
	assert.Equal(t, goimage.Rect(0, 0, 50, 40), refOut.Bounds())
	assert.Equal(t, uint8(0), refOut.GrayAt(2, 2).Y, "padding")
	assert.Equal(t, ref.GrayAt(10, 10), refOut.GrayAt(15, 15))

	paths := s.Paths()
	assert.Equal(t, "out/aligned.png", paths.RawExport)
	assert.Equal(t, "out/aligned.csv", paths.PointsSave)

	// A second export reuses the remembered target.
	res, err = s.Dispatch(ExportRequested{Cropped: false})
	require.NoError(t, err)
	assert.Equal(t, "out/aligned.png", res.RawPath)
	assert.Equal(t, goimage.Rect(0, 0, 100, 100), res.Exported.Bounds())
}

func TestExportRollsBackRememberedPaths(t *testing.T) {
	s, images, _ := loadedSession(t)
	mustDispatch(t, s, "align")

	images.failSave = true
	_, err := s.Dispatch(ExportRequested{Target: "aligned.png", Cropped: true})
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, Paths{Reference: "trace.png", Raw: "raw.tif"}, s.Paths())

	_, err = s.Dispatch(ExportRequested{Cropped: true})
	assert.ErrorIs(t, err, ErrNoTarget)

	images.failSave = false
	_, err = s.Dispatch(ExportRequested{Target: "aligned.png", Cropped: true})
	require.NoError(t, err)
	assert.Equal(t, "aligned.png", s.Paths().RawExport)
}

func TestExportBeforeAlign(t *testing.T) {
	s, _, _ := loadedSession(t)
	_, err := s.Dispatch(ExportRequested{Target: "aligned.png"})
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Empty(t, s.Paths().RawExport)
}

func TestOpenRawResetsPaths(t *testing.T) {
	s, _, _ := loadedSession(t)
	mustDispatch(t, s, "align", "export aligned.png")
	require.NotEmpty(t, s.Paths().PointsSave)

	mustDispatch(t, s, "open raw raw.tif")
	paths := s.Paths()
	assert.Empty(t, paths.RawExport)
	assert.Empty(t, paths.PointsSave)
	assert.Equal(t, "aligned_trace.png", paths.ReferenceExport)
	assert.Nil(t, s.Warped())
	assert.Nil(t, s.Fused())
	// Points survive a new raw image.
	assert.Len(t, s.OverlappingSlots(), 3)
}

func TestSaveAndLoadPoints(t *testing.T) {
	dir := t.TempDir()
	s, _, _ := loadedSession(t)
	mustDispatch(t, s, "crop -4 2.5 60 30")

	_, err := s.Dispatch(CorrespondenceSaveRequested{})
	assert.ErrorIs(t, err, ErrNoTarget)

	path := filepath.Join(dir, "points.csv")
	res, err := s.Dispatch(CorrespondenceSaveRequested{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, res.PointsPath)
	assert.Equal(t, path, s.Paths().PointsSave)

	other, _ := newTestSession(t, newMemImages())
	var crops []interface{}
	other.On(EventCropChanged, func(data interface{}) { crops = append(crops, data) })

	_, err = other.Dispatch(CorrespondenceLoadRequested{Path: path})
	require.NoError(t, err)
	assert.Equal(t, s.Points(correspondence.RoleReference), other.Points(correspondence.RoleReference))
	assert.Equal(t, s.Points(correspondence.RoleRaw), other.Points(correspondence.RoleRaw))
	assert.Equal(t, project.CropRegion{X: -4, Y: 2.5, Width: 60, Height: 30}, other.Crop())
	assert.Equal(t, []interface{}{other.Crop()}, crops)

	// Reload uses the remembered path.
	mustDispatch(t, other, "clear all", "load")
	assert.Len(t, other.OverlappingSlots(), 3)
}

func TestSaveFailureRollsBack(t *testing.T) {
	s, _, _ := loadedSession(t)
	bad := filepath.Join(t.TempDir(), "missing", "points.csv")

	_, err := s.Dispatch(CorrespondenceSaveRequested{Path: bad})
	assert.ErrorIs(t, err, project.ErrWriteFailure)
	assert.Empty(t, s.Paths().PointsSave)
}

func TestLoadMalformedLeavesStateUnchanged(t *testing.T) {
	s, _, _ := loadedSession(t)
	_, err := s.Dispatch(CorrespondenceLoadRequested{Path: filepath.Join(t.TempDir(), "none.csv")})
	assert.ErrorIs(t, err, project.ErrUnreadablePath)
	assert.Len(t, s.OverlappingSlots(), 3)
	assert.Equal(t, project.DefaultCropRegion, s.Crop())
}

func TestSessionLogsCarryID(t *testing.T) {
	s, buf := newTestSession(t, newMemImages())
	mustDispatch(t, s, "lock")
	assert.Contains(t, buf.String(), "session="+s.ID()[:8])
	assert.True(t, strings.Contains(buf.String(), "crop lock"))
}
