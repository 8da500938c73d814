package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"manual-align/internal/app"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "run [SCRIPT]",
		Short: "Run a script of session commands",
		Long: `Run executes session commands, one per line, from SCRIPT or standard input.
Blank lines and lines starting with # are ignored.

  open ref|raw PATH     load the reference or raw image
  slot ref|raw N        select the active slot
  pick ref|raw [N] X Y  set a point (active slot when N is omitted)
  clear ref|raw [N]     clear one slot or every slot of an image
  clear all             clear both point sets
  crop X Y W H          set the crop region
  lock                  toggle the crop position lock
  align                 fit, warp and fuse
  export [PATH] [full]  write the aligned raw and reference images
  save [PATH]           write the points file
  load [PATH]           read the points file`,
		Example: `  manual-align run session.txt
  printf 'open ref t.png\nopen raw r.tif\nload r.csv\nalign\nexport r_aligned.png\n' | manual-align run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			name := "stdin"
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open script: %w", err)
				}
				defer f.Close()
				in, name = f, args[0]
			}

			s := newSession(cmd.Context())
			return runScript(s, in, name, keepGoing, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after a failing command")

	return cmd
}

// runScript dispatches every command line of r against s.
func runScript(s *app.Session, r io.Reader, name string, keepGoing bool, out io.Writer) error {
	s.On(app.EventAligned, func(data interface{}) {
		if res, ok := data.(*app.Result); ok {
			printAlignment(out, res.Alignment)
		}
	})
	s.On(app.EventExported, func(data interface{}) {
		if res, ok := data.(*app.Result); ok {
			printFile(out, res.RawPath)
			printFile(out, res.ReferencePath)
		}
	})
	s.On(app.EventPointsSaved, func(data interface{}) {
		printFile(out, fmt.Sprint(data))
	})

	var errs []error
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, err := app.ParseCommand(line)
		if err == nil {
			_, err = s.Dispatch(cmd)
		}
		if err != nil {
			err = fmt.Errorf("%s:%d: %w", name, lineNo, err)
			if !keepGoing {
				return err
			}
			printWarning(out, "%v", err)
			errs = append(errs, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return errors.Join(errs...)
}
