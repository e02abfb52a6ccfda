// Package patchio implements the patch controller: format detection,
// driving the chosen decoder to completion, and publishing progress
// (spec.md §4.5, §4.6).
package patchio

import (
	"bytes"
	"io"
	"os"

	"github.com/mgius/rombp/internal/bps"
	"github.com/mgius/rombp/internal/ips"
)

// Kind is the detected patch format.
type Kind int

const (
	KindUnknown Kind = iota
	KindIPS
	KindBPS
)

func (k Kind) String() string {
	switch k {
	case KindIPS:
		return "IPS"
	case KindBPS:
		return "BPS"
	default:
		return "Unknown"
	}
}

// Detect implements the UnknownStart -> TryIps -> TryBps -> Resolved
// state machine (spec.md §4.6): it reads markers from position 0 with a
// seek-back between attempts, and always leaves the file positioned at
// 0 on return so the resolved decoder's own Start routine can advance
// from there.
func Detect(f *os.File) (Kind, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}

	ipsMarker := make([]byte, len(ips.Marker))
	n, err := io.ReadFull(f, ipsMarker)
	if err == nil && n == len(ips.Marker) && bytes.Equal(ipsMarker, ips.Marker) {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return KindUnknown, serr
		}
		return KindIPS, nil
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return KindUnknown, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}

	bpsMarker := make([]byte, len(bps.Marker))
	n, err = io.ReadFull(f, bpsMarker)
	if err == nil && n == len(bps.Marker) && bytes.Equal(bpsMarker, bps.Marker) {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return KindUnknown, serr
		}
		return KindBPS, nil
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return KindUnknown, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}
	return KindUnknown, nil
}
