// Command rombp applies an IPS or BPS patch to a source ROM, producing
// a target ROM. See spec.md §6 for the command-line contract. The
// graphical menu/file browser front-end is an external collaborator
// (spec.md §1) and is not bundled here; with no flags given, this
// prints a short notice instead of guessing at a UI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/mgius/rombp/internal/patcherr"
	"github.com/mgius/rombp/internal/patchio"
	"github.com/mgius/rombp/internal/progress"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("rombp", pflag.ContinueOnError)
	source := flags.StringP("input", "i", "", "path to the source ROM")
	patch := flags.StringP("patch", "p", "", "path to the IPS or BPS patch file")
	output := flags.StringP("output", "o", "", "path to write the patched ROM")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flags.Usage()
		return 1
	}

	if *source == "" && *patch == "" && *output == "" {
		fmt.Fprintln(os.Stderr, "no arguments supplied; rombp ships no bundled front-end, pass -i/-p/-o")
		return 0
	}

	if *source == "" || *patch == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "all of -i/--input, -p/--patch, -o/--output are required when any is given")
		flags.Usage()
		return 1
	}

	logger := log.New(os.Stderr)

	cmd := patchio.Command{SourcePath: *source, PatchPath: *patch, OutputPath: *output}
	controller := patchio.NewController(logger)

	var ch progress.Channel
	if err := controller.Apply(cmd, &ch); err != nil {
		var perr *patcherr.PatchError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", perr.Kind, perr.Err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}

	snap := ch.Snapshot()
	fmt.Printf("applied %d hunk(s), status=%s\n", snap.HunkCount, snap.IterStatus)
	return 0
}
