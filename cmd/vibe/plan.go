package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rahul/vibe/internal/filetree"
	"github.com/rahul/vibe/internal/mount"
	"github.com/rahul/vibe/internal/plan"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Print the steps of a plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printSteps(cmd.OutOrStdout(), plan.Parse(string(data)))
		},
	}
}

func printSteps(w io.Writer, steps []plan.Step) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTITLE\tTARGET")
	for _, s := range steps {
		target := s.Path
		if s.Kind == plan.KindRunScript {
			target = s.Command
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Kind, s.Title, target)
	}
	return tw.Flush()
}

type buildOptions struct {
	out     string
	asJSON  bool
	asZip   bool
	verbose bool
	watch   bool
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build <file>...",
		Short: "Fold plan files in order and write the project",
		Long: "Parse each plan file in order, fold its steps into one file tree and write\n" +
			"the result to --out as a directory, a mount JSON document (--json) or a zip\n" +
			"archive (--zip). With --json and no --out the document goes to stdout.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return watchBuild(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
			}
			return runBuild(cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output directory or file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "write the mount projection as JSON")
	cmd.Flags().BoolVar(&opts.asZip, "zip", false, "write a zip archive")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "report skipped steps")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "rebuild when a plan file changes")
	cmd.MarkFlagsMutuallyExclusive("json", "zip")
	return cmd
}

func runBuild(stdout, stderr io.Writer, files []string, opts buildOptions) error {
	if opts.out == "" && !opts.asJSON {
		return errors.New("--out is required")
	}

	p := plan.NewParser(1)
	var steps []plan.Step
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		steps = append(steps, p.Parse(string(data))...)
	}

	res := filetree.Apply(filetree.New(), steps)
	if opts.verbose {
		for _, err := range res.Skipped {
			fmt.Fprintf(stderr, "skipped: %v\n", err)
		}
	}

	switch {
	case opts.asJSON:
		w := stdout
		if opts.out != "" {
			f, err := os.Create(opts.out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mount.Project(res.Tree))
	case opts.asZip:
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		if err := res.Tree.WriteZip(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		if err := mount.WriteDir(opts.out, mount.Project(res.Tree)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d files to %s (%d steps, %d skipped)\n",
			len(res.Tree.Files()), opts.out, len(res.Steps), len(res.Skipped))
		return nil
	}
}
