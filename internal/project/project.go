// Package project provides points file handling and persistence.
//
// A points file is a six line CSV record. Line 1 holds the crop region as
// x,y,width,height; lines 2-6 hold one slot each as refX,refY,rawX,rawY.
// An unset slot is written as 0,0 and a 0,0 pair reads back as unset.
package project

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"manual-align/internal/correspondence"
	"manual-align/pkg/geometry"
)

var (
	// ErrUnreadablePath is returned when a points file cannot be opened.
	ErrUnreadablePath = errors.New("unreadable points file")
	// ErrWriteFailure is returned when a points file cannot be written.
	ErrWriteFailure = errors.New("points file write failed")
	// ErrMalformed is returned when a points file does not have the expected shape.
	ErrMalformed = errors.New("malformed points file")
)

const (
	fieldsPerRecord = 4
	recordCount     = 1 + correspondence.SlotCount
)

// CropRegion is the export crop in reference image pixels. The position may
// be negative; the size is never negative.
type CropRegion struct {
	X      float64 `toml:"x" yaml:"x"`
	Y      float64 `toml:"y" yaml:"y"`
	Width  float64 `toml:"width" yaml:"width"`
	Height float64 `toml:"height" yaml:"height"`
}

// DefaultCropRegion is the crop used before one is chosen.
var DefaultCropRegion = CropRegion{X: 0, Y: 0, Width: 100, Height: 100}

// Rect truncates the region to whole pixels. Width counts columns and
// Height counts rows; negative sizes become 0.
func (c CropRegion) Rect() geometry.RectInt {
	return geometry.NewRectInt(int(c.X), int(c.Y), max(int(c.Width), 0), max(int(c.Height), 0))
}

// Normalized returns c with negative sizes clamped to 0.
func (c CropRegion) Normalized() CropRegion {
	c.Width = max(c.Width, 0)
	c.Height = max(c.Height, 0)
	return c
}

func (c CropRegion) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", c.X, c.Y, c.Width, c.Height)
}

// File is the content of one points file.
type File struct {
	Crop      CropRegion
	Reference correspondence.PointSet
	Raw       correspondence.PointSet
}

// Load reads a points file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, ErrUnreadablePath)
	}
	defer f.Close()

	file, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return file, nil
}

// Save writes the crop region and both point sets to path, replacing any
// existing file.
func Save(path string, ref, raw correspondence.PointSet, crop CropRegion) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %v: %w", path, err, ErrWriteFailure)
	}

	if err := Write(f, ref, raw, crop); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", path, err, ErrWriteFailure)
	}
	return nil
}

// Write encodes a points file to w.
func Write(w io.Writer, ref, raw correspondence.PointSet, crop CropRegion) error {
	cw := csv.NewWriter(w)

	records := make([][]string, 0, recordCount)
	records = append(records, []string{
		formatFloat(crop.X), formatFloat(crop.Y),
		formatFloat(crop.Width), formatFloat(crop.Height),
	})

	refCoords := ref.Coordinates()
	rawCoords := raw.Coordinates()
	for i := 0; i < correspondence.SlotCount; i++ {
		records = append(records, []string{
			formatFloat(refCoords[i].X), formatFloat(refCoords[i].Y),
			formatFloat(rawCoords[i].X), formatFloat(rawCoords[i].Y),
		})
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("%v: %w", err, ErrWriteFailure)
	}
	return nil
}

// Read decodes a points file from r.
func Read(r io.Reader) (*File, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fieldsPerRecord
	cr.TrimLeadingSpace = true

	var records [][]float64
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrMalformed)
		}
		line, _ := cr.FieldPos(0)
		if len(records) == recordCount {
			return nil, fmt.Errorf("line %d: more than %d records: %w", line, recordCount, ErrMalformed)
		}

		values := make([]float64, fieldsPerRecord)
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d field %d: %q is not a number: %w", line, i+1, field, ErrMalformed)
			}
			values[i] = v
		}
		records = append(records, values)
	}
	if len(records) != recordCount {
		return nil, fmt.Errorf("expected %d records, got %d: %w", recordCount, len(records), ErrMalformed)
	}

	crop := records[0]
	file := &File{
		Crop: CropRegion{X: crop[0], Y: crop[1], Width: crop[2], Height: crop[3]}.Normalized(),
	}

	var refCoords, rawCoords [correspondence.SlotCount]geometry.Point2D
	for i, rec := range records[1:] {
		refCoords[i] = geometry.NewPoint2D(rec[0], rec[1])
		rawCoords[i] = geometry.NewPoint2D(rec[2], rec[3])
	}
	file.Reference = correspondence.FromCoordinates(refCoords)
	file.Raw = correspondence.FromCoordinates(rawCoords)

	return file, nil
}

// DefaultPointsPath derives the points file path from an image path by
// replacing its extension with .csv.
func DefaultPointsPath(imagePath string) string {
	if imagePath == "" {
		return ""
	}
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".csv"
}

// formatFloat writes the shortest representation that reads back exactly,
// keeping a ".0" on integral values.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}
