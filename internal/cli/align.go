package cli

import (
	"fmt"
	"io"

	"manual-align/internal/alignment"
	"manual-align/internal/app"
	"manual-align/internal/image"

	"github.com/spf13/cobra"
)

// alignInputs are the flags shared by align and export.
type alignInputs struct {
	reference string
	raw       string
	points    string
}

func (in *alignInputs) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.reference, "reference", "", "reference (trace) image")
	cmd.Flags().StringVar(&in.raw, "raw", "", "raw image to warp onto the reference")
	cmd.Flags().StringVar(&in.points, "points", "", "points file (CSV)")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("raw")
	_ = cmd.MarkFlagRequired("points")
}

// commands opens both images, loads the points and aligns.
func (in *alignInputs) commands() []app.Command {
	return []app.Command{
		app.OpenReference{Path: in.reference},
		app.OpenRaw{Path: in.raw},
		app.CorrespondenceLoadRequested{Path: in.points},
		app.AlignRequested{},
	}
}

func newAlignCmd() *cobra.Command {
	var (
		in     alignInputs
		warped string
		fused  string
	)

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Fit the transform and write the warped and fused images",
		Example: `  manual-align align --reference trace.png --raw scan.tif --points scan.csv --fused check.png
  manual-align align --reference trace.png --raw scan.tif --points scan.csv --warped scan_aligned.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prog := newProgress(loggerFromContext(ctx))
			s := newSession(ctx)

			res, err := dispatchAll(s, in.commands()...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printAlignment(out, res.Alignment)

			if warped != "" {
				if err := image.Save(res.Warped, warped); err != nil {
					return err
				}
				printFile(out, warped)
			}
			if fused != "" {
				if err := image.Save(res.Fused, fused); err != nil {
					return err
				}
				printFile(out, fused)
			}

			prog.done("Aligned")
			return nil
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&warped, "warped", "", "write the raw image warped into the reference frame")
	cmd.Flags().StringVar(&fused, "fused", "", "write the red/gray overlay")

	return cmd
}

func printAlignment(w io.Writer, est *alignment.Result) {
	if est == nil {
		return
	}
	printSuccess(w, "Fitted %s transform from %d point pairs", est.Kind, est.Pairs)
	if est.Suboptimal {
		printWarning(w, "2 point alignment is suboptimal; pick more pairs if possible")
	}
	t := est.Transform
	printKeyValue(w, "matrix", fmt.Sprintf("[%.6f %.6f %.3f; %.6f %.6f %.3f]", t.A, t.B, t.TX, t.C, t.D, t.TY))
	printKeyValue(w, "scale", fmt.Sprintf("%.5f", t.ScaleFactor()))
	printKeyValue(w, "rotation", fmt.Sprintf("%.4f°", t.RotationDegrees()))
	printKeyValue(w, "error", fmt.Sprintf("mean %.3fpx, max %.3fpx", est.MeanError, est.MaxError))
}
