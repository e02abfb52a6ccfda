package patchio

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/mgius/rombp/internal/bps"
	"github.com/mgius/rombp/internal/ips"
	"github.com/mgius/rombp/internal/patcherr"
	"github.com/mgius/rombp/internal/progress"
)

// Command is the immutable description of one apply: the three paths
// the caller supplies. It is owned by the caller and lives for the
// duration of a single Apply call.
type Command struct {
	SourcePath string
	PatchPath  string
	OutputPath string
}

// decoder is the minimal surface both internal/ips.Decoder and
// internal/bps.Decoder satisfy; the controller dispatches on it rather
// than on the decoders' concrete types.
type decoder interface {
	Start() error
	Next() (done bool, err error)
	End() error
	HunkCount() uint64
	Output() []byte
}

// Controller drives a single patch application end-to-end. logger may
// be nil, in which case diagnostic logging is skipped entirely.
type Controller struct {
	logger *log.Logger
}

// NewController builds a controller that logs structural/diagnostic
// events (not progress — see internal/progress for that) through
// logger. Pass nil to disable logging.
func NewController(logger *log.Logger) *Controller {
	return &Controller{logger: logger}
}

// Apply opens the three files named by cmd, detects the patch format,
// drives the decoder to completion, and publishes a progress Record to
// ch after every hunk/action (spec.md §4.5). It returns nil on success
// or a *patcherr.PatchError describing the first-encountered failure.
func (c *Controller) Apply(cmd Command, ch *progress.Channel) error {
	srcFile, err := os.Open(cmd.SourcePath)
	if err != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, err), 0)
	}
	defer srcFile.Close()

	patchFile, err := os.Open(cmd.PatchPath)
	if err != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, err), 0)
	}
	defer patchFile.Close()

	outFile, err := os.Create(cmd.OutputPath)
	if err != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, err), 0)
	}
	defer outFile.Close()

	kind, err := Detect(patchFile)
	if err != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, err), 0)
	}
	if c.logger != nil {
		c.logger.Debug("detected patch kind", "kind", kind.String())
	}
	if kind == KindUnknown {
		return c.fail(ch, patcherr.New(patcherr.UnknownType,
			errors.New("neither IPS nor BPS marker recognized")), 0)
	}

	source, err := io.ReadAll(srcFile)
	if err != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, err), 0)
	}

	var dec decoder
	switch kind {
	case KindIPS:
		dec = ips.NewDecoder(patchFile, source)
	case KindBPS:
		dec = bps.NewDecoder(patchFile, source)
	}

	if err := dec.Start(); err != nil {
		return c.fail(ch, patcherr.New(patcherr.FailedToStart, err), 0)
	}
	if c.logger != nil {
		c.logger.Info("decoder started", "kind", kind.String())
	}

	for {
		done, err := dec.Next()
		if err != nil {
			return c.fail(ch, patcherr.New(patcherr.IO, err), dec.HunkCount())
		}
		ch.Publish(progress.Record{HunkCount: dec.HunkCount(), IterStatus: progress.Next})
		if done {
			break
		}
	}

	if err := dec.End(); err != nil {
		// Best-effort: the decoded bytes are still written to disk even
		// though trailer verification failed (spec.md §7: "no rollback is
		// attempted").
		c.writeOutput(outFile, dec.Output())
		var perr *patcherr.PatchError
		if !errors.As(err, &perr) {
			err = patcherr.New(patcherr.InvalidOutputChecksum, err)
		}
		return c.fail(ch, err, dec.HunkCount())
	}

	if werr := c.writeOutput(outFile, dec.Output()); werr != nil {
		return c.fail(ch, patcherr.New(patcherr.IO, werr), dec.HunkCount())
	}

	ch.Publish(progress.Record{HunkCount: dec.HunkCount(), IterStatus: progress.Done, IsDone: true})
	if c.logger != nil {
		c.logger.Info("apply complete", "kind", kind.String(), "hunks", dec.HunkCount())
	}
	return nil
}

func (c *Controller) writeOutput(f *os.File, data []byte) error {
	_, err := f.Write(data)
	return err
}

func (c *Controller) fail(ch *progress.Channel, err error, hunks uint64) error {
	ch.Publish(progress.Record{HunkCount: hunks, IterStatus: progress.IoError, Err: err, IsDone: true})
	if c.logger != nil {
		c.logger.Error("apply failed", "err", err)
	}
	return err
}
