package cli

import (
	"fmt"
	"io"

	"manual-align/internal/correspondence"
	"manual-align/internal/project"

	"github.com/spf13/cobra"
)

func newPointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Inspect and create points files",
	}

	cmd.AddCommand(newPointsShowCmd())
	cmd.AddCommand(newPointsInitCmd())

	return cmd
}

func newPointsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print the crop region and point pairs of a points file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := project.Load(args[0])
			if err != nil {
				return err
			}
			printPoints(cmd.OutOrStdout(), args[0], file)
			return nil
		},
	}
}

func printPoints(w io.Writer, path string, file *project.File) {
	printTitle(w, "%s", path)
	printKeyValue(w, "crop", file.Crop.String())

	overlap := 0
	for i := 0; i < correspondence.SlotCount; i++ {
		ref, raw := file.Reference[i], file.Raw[i]
		mark := " "
		if ref.Set && raw.Set {
			mark = "*"
			overlap++
		}
		printKeyValue(w, fmt.Sprintf("slot %d %s", i+1, mark),
			fmt.Sprintf("ref %-18s raw %s", pointString(ref), pointString(raw)))
	}

	switch {
	case overlap > 2:
		printDetail(w, "%d overlapping pairs: affine fit", overlap)
	case overlap == 2:
		printDetail(w, "2 overlapping pairs: similarity fit (suboptimal)")
	default:
		printDetail(w, "%d overlapping pairs: not enough to align", overlap)
	}
}

func pointString(p correspondence.Point) string {
	if !p.Set {
		return "-"
	}
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

func newPointsInitCmd() *cobra.Command {
	var (
		crop  []float64
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init FILE",
		Short: "Write an empty points file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if fileExists(path) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			region := configFromContext(cmd.Context()).Crop
			if cmd.Flags().Changed("crop") {
				if len(crop) != 4 {
					return fmt.Errorf("--crop takes x,y,width,height, got %d values", len(crop))
				}
				region = project.CropRegion{X: crop[0], Y: crop[1], Width: crop[2], Height: crop[3]}
				if region.Width < 0 || region.Height < 0 {
					return fmt.Errorf("crop size must not be negative: %s", region)
				}
			}

			var empty correspondence.PointSet
			if err := project.Save(path, empty, empty, region); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Wrote empty points file with crop %s", region)
			printFile(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().Float64SliceVar(&crop, "crop", nil, "crop region as x,y,width,height")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
