package cli

import (
	"fmt"

	"manual-align/internal/annotate"
	"manual-align/internal/correspondence"
	"manual-align/internal/image"
	"manual-align/internal/project"

	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	var (
		imagePath string
		points    string
		role      string
		out       string
		showCrop  bool
		noLabels  bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Draw the picked points of one image as colored markers",
		Long: `Preview draws a colored cross for every set slot of one image's points
(slot 1 red, 2 green, 3 blue, 4 purple, 5 yellow) and optionally outlines the
crop region.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parsePreviewRole(role)
			if err != nil {
				return err
			}

			layer, err := image.Load(imagePath)
			if err != nil {
				return err
			}
			file, err := project.Load(points)
			if err != nil {
				return err
			}

			set := file.Reference
			if r == correspondence.RoleRaw {
				set = file.Raw
			}

			opts := annotate.DefaultOptions()
			opts.Labels = !noLabels
			if showCrop {
				rect := file.Crop.Rect()
				opts.Crop = &rect
			}

			img := annotate.Markers(layer.Image, set, opts)
			if err := image.Save(img, out); err != nil {
				return err
			}

			loggerFromContext(cmd.Context()).Debug("preview", "role", r, "points", set.Count())
			printSuccess(cmd.OutOrStdout(), "Marked %d %s points", set.Count(), r)
			printFile(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "image to draw on")
	cmd.Flags().StringVar(&points, "points", "", "points file (CSV)")
	cmd.Flags().StringVar(&role, "role", "ref", "which points to draw: ref or raw")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output image")
	cmd.Flags().BoolVar(&showCrop, "show-crop", false, "outline the crop region")
	cmd.Flags().BoolVar(&noLabels, "no-labels", false, "omit slot numbers")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("points")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func parsePreviewRole(s string) (correspondence.Role, error) {
	switch s {
	case "ref", "reference", "trace":
		return correspondence.RoleReference, nil
	case "raw":
		return correspondence.RoleRaw, nil
	default:
		return 0, fmt.Errorf("--role must be ref or raw, got %q", s)
	}
}
