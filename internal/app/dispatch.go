package app

import (
	"errors"
	"fmt"
	goimage "image"
	"path/filepath"
	"strings"

	"manual-align/internal/alignment"
	"manual-align/internal/correspondence"
	"manual-align/internal/image"
	"manual-align/internal/project"
)

// Result reports what a command produced.
type Result struct {
	Command Command

	// Set by AlignRequested.
	Alignment *alignment.Result
	Warped    *goimage.Gray
	Fused     *goimage.RGBA

	// Set by ExportRequested: the pixel grid written to RawPath.
	Exported      goimage.Image
	RawPath       string
	ReferencePath string

	// Set by the points file commands.
	PointsPath string
}

// Dispatch runs one command against the session. A command that fails
// leaves points, images and the crop region as they were.
func (s *Session) Dispatch(cmd Command) (*Result, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command: %w", ErrUnknownCommand)
	}
	s.log.Debug("dispatch", "command", cmd.String())

	res := &Result{Command: cmd}
	var err error

	switch c := cmd.(type) {
	case OpenReference:
		err = s.openReference(c.Path)
	case OpenRaw:
		err = s.openRaw(c.Path)
	case SelectSlot:
		err = s.selectSlot(c.Role, c.Slot)
	case PointPicked:
		err = s.pickPoint(c)
	case PointCleared:
		err = s.clearPoint(c.Role, c.Slot)
	case ClearPoints:
		err = s.clearPoints(c.Role)
	case CropRegionChanged:
		err = s.setCrop(c.Region)
	case ToggleCropLock:
		s.cropLocked = !s.cropLocked
		s.log.Info("crop lock", "locked", s.cropLocked)
	case AlignRequested:
		err = s.align(res)
	case ExportRequested:
		err = s.export(c, res)
	case CorrespondenceSaveRequested:
		err = s.savePoints(c.Path, res)
	case CorrespondenceLoadRequested:
		err = s.loadPoints(c.Path, res)
	default:
		err = fmt.Errorf("%T: %w", cmd, ErrUnknownCommand)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return res, nil
}

func (s *Session) openReference(path string) error {
	layer, err := s.images.Load(path)
	if err != nil {
		return err
	}

	s.reference = layer
	s.paths.Reference = path
	s.clearAligned()

	s.log.Info("loaded reference image", "path", path, "size", fmt.Sprintf("%dx%d", layer.Width(), layer.Height()))
	s.Emit(EventImageLoaded, layer)
	return nil
}

func (s *Session) openRaw(path string) error {
	layer, err := s.images.Load(path)
	if err != nil {
		return err
	}

	s.raw = layer
	s.paths.Raw = path
	s.paths.RawExport = ""
	s.paths.PointsSave = ""
	s.clearAligned()

	s.log.Info("loaded raw image", "path", path, "size", fmt.Sprintf("%dx%d", layer.Width(), layer.Height()))
	s.Emit(EventImageLoaded, layer)
	return nil
}

func (s *Session) selectSlot(role correspondence.Role, slot correspondence.Slot) error {
	if role != correspondence.RoleReference && role != correspondence.RoleRaw {
		return fmt.Errorf("unknown image role %d", role)
	}
	if !slot.Valid() {
		return fmt.Errorf("select slot %d: %w", slot, correspondence.ErrInvalidSlot)
	}
	s.active[role] = slot
	return nil
}

func (s *Session) pickPoint(c PointPicked) error {
	slot := c.Slot
	if slot == 0 {
		slot = s.ActiveSlot(c.Role)
	}
	if err := s.store.SetPoint(c.Role, slot, c.Coord); err != nil {
		return err
	}
	s.log.Debug("point picked", "role", c.Role, "slot", slot, "at", c.Coord)
	s.Emit(EventPointsChanged, c.Role)
	return nil
}

func (s *Session) clearPoint(role correspondence.Role, slot correspondence.Slot) error {
	if err := s.store.ClearPoint(role, slot); err != nil {
		return err
	}
	s.Emit(EventPointsChanged, role)
	return nil
}

func (s *Session) clearPoints(role correspondence.Role) error {
	if role == RoleAll {
		s.store.ClearBoth()
	} else if err := s.store.ClearAll(role); err != nil {
		return err
	}
	s.Emit(EventPointsChanged, role)
	return nil
}

func (s *Session) setCrop(region project.CropRegion) error {
	if region.Width < 0 || region.Height < 0 {
		return fmt.Errorf("crop size must not be negative: %s", region)
	}
	if s.cropLocked {
		region.X, region.Y = s.crop.X, s.crop.Y
	}
	s.crop = region
	s.Emit(EventCropChanged, region)
	return nil
}

func (s *Session) align(res *Result) error {
	if s.reference == nil || s.raw == nil {
		return fmt.Errorf("align needs both images: %w", ErrNoImage)
	}

	ref, raw, slots := s.store.Pairs()
	if len(slots) < 2 {
		s.log.Warn("not enough valid points selected", "overlapping", len(slots))
	}

	est, err := alignment.Estimate(ref, raw)
	if err != nil {
		return err
	}
	if est.Suboptimal {
		s.log.Warn("using 2 point alignment (suboptimal)")
	} else {
		s.log.Info(fmt.Sprintf("using %d point alignment", est.Pairs))
	}

	warped, err := s.warper.Warp(s.raw.Image, est.Transform, s.reference.Width(), s.reference.Height())
	if err != nil {
		return err
	}
	fused, err := image.Fuse(warped, s.reference.Image)
	if err != nil {
		return err
	}

	s.estimate = est
	s.warped = warped
	s.fused = fused

	s.log.Info("aligned",
		"model", est.Kind,
		"slots", slots,
		"scale", fmt.Sprintf("%.4f", est.Transform.ScaleFactor()),
		"rotation", fmt.Sprintf("%.3f°", est.Transform.RotationDegrees()),
		"mean_error", fmt.Sprintf("%.2fpx", est.MeanError),
		"max_error", fmt.Sprintf("%.2fpx", est.MaxError))

	res.Alignment = est
	res.Warped = warped
	res.Fused = fused
	s.Emit(EventAligned, res)
	return nil
}

// export writes the aligned raw image and the reference image. Paths it
// remembers for the first time are forgotten again if a write fails, so the
// caller is asked for a target on the next attempt.
func (s *Session) export(c ExportRequested, res *Result) error {
	if s.warped == nil || s.reference == nil {
		return fmt.Errorf("export before align: %w", ErrNoImage)
	}

	saved := s.paths
	target := c.Target
	if target == "" {
		target = s.paths.RawExport
	}
	if target == "" {
		return fmt.Errorf("export: %w", ErrNoTarget)
	}

	s.paths.RawExport = target
	if s.paths.PointsSave == "" {
		s.paths.PointsSave = project.DefaultPointsPath(target)
	}
	if s.paths.ReferenceExport == "" {
		s.paths.ReferenceExport = withSuffix(target, s.refSuffix)
	}

	var crop *project.CropRegion
	if c.Cropped {
		crop = &s.crop
	}
	rawOut := extract(s.warped, crop)
	refOut := extract(s.reference.Image, crop)

	if err := s.writeExport(rawOut, s.paths.RawExport, refOut, s.paths.ReferenceExport); err != nil {
		s.paths = saved
		return err
	}

	s.log.Info("exported", "raw", s.paths.RawExport, "reference", s.paths.ReferenceExport, "cropped", c.Cropped)

	res.Exported = rawOut
	res.RawPath = s.paths.RawExport
	res.ReferencePath = s.paths.ReferenceExport
	s.Emit(EventExported, res)
	return nil
}

func (s *Session) writeExport(rawOut goimage.Image, rawPath string, refOut goimage.Image, refPath string) error {
	if rawPath == refPath {
		return fmt.Errorf("raw and reference export paths are both %s", rawPath)
	}
	if err := s.images.Save(rawOut, rawPath); err != nil {
		return err
	}
	return s.images.Save(refOut, refPath)
}

func (s *Session) savePoints(path string, res *Result) error {
	saved := s.paths
	if path == "" {
		path = s.paths.PointsSave
	}
	if path == "" {
		return fmt.Errorf("save points: %w", ErrNoTarget)
	}
	s.paths.PointsSave = path

	ref := s.store.PointSet(correspondence.RoleReference)
	raw := s.store.PointSet(correspondence.RoleRaw)
	if err := project.Save(path, ref, raw, s.crop); err != nil {
		s.paths = saved
		return err
	}

	s.log.Info("saved points", "path", path, "reference", ref.Count(), "raw", raw.Count())
	res.PointsPath = path
	s.Emit(EventPointsSaved, path)
	return nil
}

func (s *Session) loadPoints(path string, res *Result) error {
	if path == "" {
		path = s.paths.PointsLoad
	}
	if path == "" {
		return fmt.Errorf("load points: %w", ErrNoTarget)
	}

	file, err := project.Load(path)
	if err != nil {
		return err
	}

	if err := errors.Join(
		s.store.SetPointSet(correspondence.RoleReference, file.Reference),
		s.store.SetPointSet(correspondence.RoleRaw, file.Raw),
	); err != nil {
		return err
	}
	s.crop = file.Crop
	s.paths.PointsLoad = path

	s.log.Info("loaded points", "path", path, "overlapping", len(s.store.OverlappingSlots()), "crop", file.Crop)
	res.PointsPath = path
	s.Emit(EventPointsLoaded, path)
	s.Emit(EventPointsChanged, RoleAll)
	s.Emit(EventCropChanged, file.Crop)
	return nil
}

// extract applies crop, or returns img whole when crop is nil.
func extract(img goimage.Image, crop *project.CropRegion) goimage.Image {
	if crop == nil {
		return image.Extract(img, nil)
	}
	r := crop.Rect()
	return image.Extract(img, &r)
}

// withSuffix inserts suffix before the extension of path.
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
