// Package cli implements the manual-align command-line interface.
//
// Commands load a reference and a raw image, fit the transform from a points
// file, and write the warped, fused or cropped results. The run command
// drives one session from a script of text commands. All commands support
// --verbose (-v) for debug-level logging; the logger and settings are passed
// to commands through context.Context.
package cli

import (
	"context"
	"fmt"
	"os"

	"manual-align/internal/app"
	"manual-align/internal/config"
	"manual-align/internal/image"
	"manual-align/internal/image/cvwarp"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	verbose    bool
	backend    string
	interp     string
}

// Execute runs the CLI and returns an error if any command fails.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "manual-align",
		Short:        "Register a raw image onto a reference from picked point pairs",
		Long:         `manual-align warps a raw image into the frame of a reference (trace) image using up to five manually picked point pairs, renders a red/gray overlay for inspection, and exports cropped regions of both images.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), logLevel(cfg, opts.verbose))
			logger.Debug("settings", "backend", cfg.Backend, "interp", cfg.Interpolation, "crop", cfg.Crop)

			ctx := withLogger(cmd.Context(), logger)
			ctx = withConfig(ctx, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("manual-align %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file (.toml, .yaml or .yml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "warp backend: go or opencv")
	root.PersistentFlags().StringVar(&opts.interp, "interp", "", "interpolation: bilinear, nearest or catmullrom")

	root.AddCommand(newAlignCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newPointsCmd())
	root.AddCommand(newPreviewCmd())
	root.AddCommand(newRunCmd())

	return root
}

// loadSettings reads the config file, if any, and applies flag overrides.
func loadSettings(opts *rootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.interp != "" {
		cfg.Interpolation = opts.interp
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newWarper returns the warp backend selected by cfg.
func newWarper(cfg config.Config) image.Warper {
	if cfg.Backend == config.BackendOpenCV {
		return cvwarp.Warper{Interp: cfg.Interp()}
	}
	return image.DrawWarper{Interp: cfg.Interp()}
}

// newSession builds a session from the settings and logger in ctx.
func newSession(ctx context.Context) *app.Session {
	cfg := configFromContext(ctx)
	return app.NewSession(app.Options{
		Logger:          loggerFromContext(ctx),
		Warper:          newWarper(cfg),
		Crop:            cfg.Crop,
		ReferenceSuffix: cfg.ReferenceSuffix,
	})
}

// dispatchAll runs cmds in order, stopping at the first failure.
func dispatchAll(s *app.Session, cmds ...app.Command) (*app.Result, error) {
	var last *app.Result
	for _, c := range cmds {
		res, err := s.Dispatch(c)
		if err != nil {
			return nil, err
		}
		last = res
	}
	return last, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
