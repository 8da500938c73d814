package cli

import (
	"manual-align/internal/app"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		in     alignInputs
		out    string
		refOut string
		full   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Align and write the cropped raw and reference images",
		Long: `Export aligns the raw image and writes the crop region of the aligned raw
image to --out and the same region of the reference image to --reference-out.
Parts of the crop outside the images are black. Without --reference-out the
reference is written next to --out with the configured suffix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prog := newProgress(loggerFromContext(ctx))
			s := newSession(ctx)

			if _, err := dispatchAll(s, in.commands()...); err != nil {
				return err
			}
			if refOut != "" {
				s.SetReferenceExportPath(refOut)
			}

			res, err := s.Dispatch(app.ExportRequested{Target: out, Cropped: !full})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printAlignment(w, s.Alignment())
			b := res.Exported.Bounds()
			printSuccess(w, "Exported %dx%d region", b.Dx(), b.Dy())
			printFile(w, res.RawPath)
			printFile(w, res.ReferencePath)

			prog.done("Exported")
			return nil
		},
	}

	in.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "aligned raw image output")
	cmd.Flags().StringVar(&refOut, "reference-out", "", "reference image output")
	cmd.Flags().BoolVar(&full, "full", false, "export the full frame instead of the crop region")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
