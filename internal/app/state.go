// Package app provides the registration session: its state, the commands
// that drive it, and the events it publishes.
package app

import (
	"errors"
	goimage "image"
	"io"

	"manual-align/internal/alignment"
	"manual-align/internal/correspondence"
	"manual-align/internal/image"
	"manual-align/internal/project"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrNoImage is returned when a command needs an image that is not loaded
	// or not yet computed.
	ErrNoImage = errors.New("image not available")
	// ErrNoTarget is returned when a save has neither an explicit nor a
	// remembered destination.
	ErrNoTarget = errors.New("no target path")
	// ErrUnknownCommand is returned for commands the session cannot handle.
	ErrUnknownCommand = errors.New("unknown command")
)

// RoleAll addresses both point sets in ClearPoints.
const RoleAll correspondence.Role = -1

// ImageStore is the image file collaborator.
type ImageStore interface {
	Load(path string) (*image.Layer, error)
	Save(img goimage.Image, path string) error
}

// FileImages is the ImageStore backed by image.Load and image.Save.
type FileImages struct{}

// Load implements ImageStore.
func (FileImages) Load(path string) (*image.Layer, error) { return image.Load(path) }

// Save implements ImageStore.
func (FileImages) Save(img goimage.Image, path string) error { return image.Save(img, path) }

// Paths holds the file locations a session knows about.
type Paths struct {
	Reference       string // reference image source
	Raw             string // raw image source
	RawExport       string // remembered aligned raw export target
	ReferenceExport string // remembered reference export target
	PointsSave      string // remembered points file save target
	PointsLoad      string // last points file loaded
}

// Options configures a new Session. Zero fields get defaults.
type Options struct {
	Logger *log.Logger
	Images ImageStore
	Warper image.Warper
	// Crop is the initial crop region; a zero region selects
	// project.DefaultCropRegion.
	Crop project.CropRegion
	// ReferenceSuffix names the reference export when only the raw export
	// target is known: "aligned.png" becomes "aligned<suffix>.png".
	ReferenceSuffix string
}

// Session holds the state of one registration job. It is not safe for
// concurrent use; commands are expected one at a time from a single caller.
type Session struct {
	id  string
	log *log.Logger

	images    ImageStore
	warper    image.Warper
	refSuffix string

	store      *correspondence.Store
	active     [2]correspondence.Slot
	crop       project.CropRegion
	cropLocked bool

	reference *image.Layer
	raw       *image.Layer
	warped    *goimage.Gray
	fused     *goimage.RGBA
	estimate  *alignment.Result

	paths Paths

	listeners map[EventType][]EventListener
}

// EventType identifies session events.
type EventType int

const (
	EventImageLoaded EventType = iota
	EventPointsChanged
	EventCropChanged
	EventAligned
	EventExported
	EventPointsSaved
	EventPointsLoaded
)

func (e EventType) String() string {
	switch e {
	case EventImageLoaded:
		return "image-loaded"
	case EventPointsChanged:
		return "points-changed"
	case EventCropChanged:
		return "crop-changed"
	case EventAligned:
		return "aligned"
	case EventExported:
		return "exported"
	case EventPointsSaved:
		return "points-saved"
	case EventPointsLoaded:
		return "points-loaded"
	default:
		return "unknown"
	}
}

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	id := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	images := opts.Images
	if images == nil {
		images = FileImages{}
	}
	warper := opts.Warper
	if warper == nil {
		warper = image.DrawWarper{Interp: image.InterpBilinear}
	}
	crop := opts.Crop
	if crop == (project.CropRegion{}) {
		crop = project.DefaultCropRegion
	}
	suffix := opts.ReferenceSuffix
	if suffix == "" {
		suffix = "_trace"
	}

	return &Session{
		id:        id,
		log:       logger.With("session", id[:8]),
		images:    images,
		warper:    warper,
		refSuffix: suffix,
		store:     correspondence.NewStore(),
		active:    [2]correspondence.Slot{1, 1},
		crop:      crop.Normalized(),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers a listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	for _, listener := range s.listeners[event] {
		listener(data)
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Points returns a copy of the point set for role.
func (s *Session) Points(role correspondence.Role) correspondence.PointSet {
	return s.store.PointSet(role)
}

// OverlappingSlots returns the slots set in both point sets.
func (s *Session) OverlappingSlots() []correspondence.Slot {
	return s.store.OverlappingSlots()
}

// ActiveSlot returns the slot that point picks without a slot go to.
func (s *Session) ActiveSlot(role correspondence.Role) correspondence.Slot {
	if role != correspondence.RoleReference && role != correspondence.RoleRaw {
		return 0
	}
	return s.active[role]
}

// Crop returns the current crop region.
func (s *Session) Crop() project.CropRegion { return s.crop }

// CropLocked reports whether crop moves are ignored.
func (s *Session) CropLocked() bool { return s.cropLocked }

// Reference returns the loaded reference image, or nil.
func (s *Session) Reference() *image.Layer { return s.reference }

// Raw returns the loaded raw image, or nil.
func (s *Session) Raw() *image.Layer { return s.raw }

// Warped returns the raw image resampled into the reference frame by the
// last alignment, or nil.
func (s *Session) Warped() *goimage.Gray { return s.warped }

// Fused returns the last red/gray overlay, or nil.
func (s *Session) Fused() *goimage.RGBA { return s.fused }

// Alignment returns the last fitted transform, or nil.
func (s *Session) Alignment() *alignment.Result { return s.estimate }

// Paths returns the file locations known to the session.
func (s *Session) Paths() Paths { return s.paths }

// SetReferenceExportPath sets where the cropped reference image is written
// on export.
func (s *Session) SetReferenceExportPath(path string) {
	s.paths.ReferenceExport = path
}

// clearAligned drops results computed from the previous images.
func (s *Session) clearAligned() {
	s.warped = nil
	s.fused = nil
	s.estimate = nil
}
