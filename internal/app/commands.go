package app

import (
	"fmt"
	"strconv"
	"strings"

	"manual-align/internal/correspondence"
	"manual-align/internal/project"
	"manual-align/pkg/geometry"
)

// Command is one request to a Session. Its String form is the line the
// command language uses for it.
type Command interface {
	fmt.Stringer
	command()
}

// OpenReference loads the reference (trace) image.
type OpenReference struct{ Path string }

// OpenRaw loads the raw image to be aligned.
type OpenRaw struct{ Path string }

// SelectSlot makes Slot the active slot for Role.
type SelectSlot struct {
	Role correspondence.Role
	Slot correspondence.Slot
}

// PointPicked stores Coord in Slot of Role. Slot 0 means the active slot.
type PointPicked struct {
	Role  correspondence.Role
	Slot  correspondence.Slot
	Coord geometry.Point2D
}

// PointCleared unsets one slot.
type PointCleared struct {
	Role correspondence.Role
	Slot correspondence.Slot
}

// ClearPoints unsets every slot of Role, or of both roles for RoleAll.
type ClearPoints struct{ Role correspondence.Role }

// CropRegionChanged moves or resizes the crop region. While the crop is
// locked only the size is taken.
type CropRegionChanged struct{ Region project.CropRegion }

// ToggleCropLock locks or unlocks the crop position.
type ToggleCropLock struct{}

// AlignRequested fits the transform and recomputes the warped and fused images.
type AlignRequested struct{}

// ExportRequested writes the aligned raw image to Target and the reference
// image to the reference export path. An empty Target uses the remembered
// one. Cropped selects the crop region instead of the full frame.
type ExportRequested struct {
	Target  string
	Cropped bool
}

// CorrespondenceSaveRequested writes the points file. An empty Path uses
// the remembered one.
type CorrespondenceSaveRequested struct{ Path string }

// CorrespondenceLoadRequested replaces both point sets and the crop region
// from a points file. An empty Path reloads the last one.
type CorrespondenceLoadRequested struct{ Path string }

func (OpenReference) command()               {}
func (OpenRaw) command()                     {}
func (SelectSlot) command()                  {}
func (PointPicked) command()                 {}
func (PointCleared) command()                {}
func (ClearPoints) command()                 {}
func (CropRegionChanged) command()           {}
func (ToggleCropLock) command()              {}
func (AlignRequested) command()              {}
func (ExportRequested) command()             {}
func (CorrespondenceSaveRequested) command() {}
func (CorrespondenceLoadRequested) command() {}

func (c OpenReference) String() string { return "open ref " + quotePath(c.Path) }
func (c OpenRaw) String() string       { return "open raw " + quotePath(c.Path) }

func (c SelectSlot) String() string {
	return fmt.Sprintf("slot %s %d", roleWord(c.Role), c.Slot)
}

func (c PointPicked) String() string {
	if c.Slot == 0 {
		return fmt.Sprintf("pick %s %s %s", roleWord(c.Role), fmtNum(c.Coord.X), fmtNum(c.Coord.Y))
	}
	return fmt.Sprintf("pick %s %d %s %s", roleWord(c.Role), c.Slot, fmtNum(c.Coord.X), fmtNum(c.Coord.Y))
}

func (c PointCleared) String() string {
	return fmt.Sprintf("clear %s %d", roleWord(c.Role), c.Slot)
}

func (c ClearPoints) String() string { return "clear " + roleWord(c.Role) }

func (c CropRegionChanged) String() string {
	r := c.Region
	return fmt.Sprintf("crop %s %s %s %s", fmtNum(r.X), fmtNum(r.Y), fmtNum(r.Width), fmtNum(r.Height))
}

func (ToggleCropLock) String() string { return "lock" }
func (AlignRequested) String() string { return "align" }

func (c ExportRequested) String() string {
	s := "export"
	if c.Target != "" {
		s += " " + quotePath(c.Target)
	}
	if !c.Cropped {
		s += " full"
	}
	return s
}

func (c CorrespondenceSaveRequested) String() string {
	return strings.TrimSpace("save " + quotePath(c.Path))
}

func (c CorrespondenceLoadRequested) String() string {
	return strings.TrimSpace("load " + quotePath(c.Path))
}

// ParseCommand parses one line of the command language:
//
//	open ref|raw PATH
//	slot ref|raw N
//	pick ref|raw [N] X Y
//	clear ref|raw [N]
//	clear all
//	crop X Y W H
//	lock
//	align
//	export [PATH] [full]
//	save [PATH]
//	load [PATH]
//
// Paths containing spaces must be double quoted.
func ParseCommand(line string) (Command, error) {
	fields, err := splitFields(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty line: %w", ErrUnknownCommand)
	}

	verb, args := strings.ToLower(fields[0]), fields[1:]
	switch verb {
	case "open":
		if len(args) != 2 {
			return nil, usage(verb, "open ref|raw PATH")
		}
		role, err := parseRole(args[0], false)
		if err != nil {
			return nil, err
		}
		if role == correspondence.RoleReference {
			return OpenReference{Path: args[1]}, nil
		}
		return OpenRaw{Path: args[1]}, nil

	case "slot":
		if len(args) != 2 {
			return nil, usage(verb, "slot ref|raw N")
		}
		role, err := parseRole(args[0], false)
		if err != nil {
			return nil, err
		}
		slot, err := parseSlot(args[1])
		if err != nil {
			return nil, err
		}
		return SelectSlot{Role: role, Slot: slot}, nil

	case "pick":
		if len(args) != 3 && len(args) != 4 {
			return nil, usage(verb, "pick ref|raw [N] X Y")
		}
		role, err := parseRole(args[0], false)
		if err != nil {
			return nil, err
		}
		var slot correspondence.Slot
		if len(args) == 4 {
			if slot, err = parseSlot(args[1]); err != nil {
				return nil, err
			}
			args = args[1:]
		}
		nums, err := parseNums(args[1:])
		if err != nil {
			return nil, err
		}
		return PointPicked{Role: role, Slot: slot, Coord: geometry.NewPoint2D(nums[0], nums[1])}, nil

	case "clear":
		if len(args) != 1 && len(args) != 2 {
			return nil, usage(verb, "clear ref|raw [N] | clear all")
		}
		role, err := parseRole(args[0], len(args) == 1)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return ClearPoints{Role: role}, nil
		}
		slot, err := parseSlot(args[1])
		if err != nil {
			return nil, err
		}
		return PointCleared{Role: role, Slot: slot}, nil

	case "crop":
		if len(args) != 4 {
			return nil, usage(verb, "crop X Y W H")
		}
		nums, err := parseNums(args)
		if err != nil {
			return nil, err
		}
		return CropRegionChanged{Region: project.CropRegion{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}}, nil

	case "lock":
		if len(args) != 0 {
			return nil, usage(verb, "lock")
		}
		return ToggleCropLock{}, nil

	case "align":
		if len(args) != 0 {
			return nil, usage(verb, "align")
		}
		return AlignRequested{}, nil

	case "export":
		cmd := ExportRequested{Cropped: true}
		if n := len(args); n > 0 && strings.EqualFold(args[n-1], "full") {
			cmd.Cropped = false
			args = args[:n-1]
		}
		if len(args) > 1 {
			return nil, usage(verb, "export [PATH] [full]")
		}
		if len(args) == 1 {
			cmd.Target = args[0]
		}
		return cmd, nil

	case "save", "load":
		if len(args) > 1 {
			return nil, usage(verb, verb+" [PATH]")
		}
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		if verb == "save" {
			return CorrespondenceSaveRequested{Path: path}, nil
		}
		return CorrespondenceLoadRequested{Path: path}, nil
	}

	return nil, fmt.Errorf("%q: %w", verb, ErrUnknownCommand)
}

func usage(verb, form string) error {
	return fmt.Errorf("%s: usage: %s: %w", verb, form, ErrUnknownCommand)
}

func parseRole(s string, allowAll bool) (correspondence.Role, error) {
	switch strings.ToLower(s) {
	case "ref", "reference", "trace":
		return correspondence.RoleReference, nil
	case "raw":
		return correspondence.RoleRaw, nil
	case "all":
		if allowAll {
			return RoleAll, nil
		}
	}
	return 0, fmt.Errorf("unknown image role %q", s)
}

func roleWord(r correspondence.Role) string {
	switch r {
	case correspondence.RoleReference:
		return "ref"
	case correspondence.RoleRaw:
		return "raw"
	case RoleAll:
		return "all"
	default:
		return "?"
	}
}

func parseSlot(s string) (correspondence.Slot, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("slot %q: %w", s, correspondence.ErrInvalidSlot)
	}
	slot := correspondence.Slot(n)
	if !slot.Valid() {
		return 0, fmt.Errorf("slot %d: %w", n, correspondence.ErrInvalidSlot)
	}
	return slot, nil
}

func parseNums(args []string) ([]float64, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		nums[i] = v
	}
	return nums, nil
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func quotePath(p string) string {
	if strings.ContainsAny(p, " \t\"") {
		return strconv.Quote(p)
	}
	return p
}

// splitFields splits on whitespace, keeping double quoted strings together.
func splitFields(line string) ([]string, error) {
	var (
		fields []string
		rest   = strings.TrimSpace(line)
	)
	for rest != "" {
		if rest[0] == '"' {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, fmt.Errorf("unterminated quote in %q", line)
			}
			unq, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, fmt.Errorf("bad quoted field %s: %w", quoted, err)
			}
			fields = append(fields, unq)
			rest = strings.TrimSpace(rest[len(quoted):])
			continue
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimSpace(rest[end:])
	}
	return fields, nil
}
