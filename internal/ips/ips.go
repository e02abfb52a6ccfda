// Package ips implements the IPS (International Patching System) patch
// decoder: marker check, then a loop of raw or RLE hunks terminated by
// the "EOF" sentinel (spec.md §4.3).
package ips

import (
	"bytes"
	"errors"
	"os"

	"github.com/mgius/rombp/internal/byteio"
)

// Marker is the 5-byte ASCII signature every IPS patch file starts
// with.
var Marker = []byte("PATCH")

// eofTag is the 3-byte sentinel that terminates the hunk loop. Its
// first-occurrence convention (spec.md §4.3) means a legitimate hunk
// offset that happens to start with these three bytes can never be
// produced; a real encoder would never emit it as a non-terminal
// prefix, and decoders (including this one) treat the first occurrence
// as the terminator.
var eofTag = []byte("EOF")

// ErrBadMarker is returned by Start when the patch stream does not
// begin with the IPS marker.
var ErrBadMarker = errors.New("ips: missing PATCH marker")

// Decoder streams an IPS patch against an in-memory source image,
// producing an in-memory target image. Per spec.md invariant 2, the
// target starts as an exact copy of the source and is extended with
// zero bytes as hunks land past its current length.
type Decoder struct {
	patch *byteio.Reader
	out   *byteio.Buffer

	hunkCount uint64
}

// NewDecoder builds a decoder reading the patch sequentially from
// patchFile (which must be positioned at offset 0, i.e. before the
// marker) and writing into a target image seeded from source.
func NewDecoder(patchFile *os.File, source []byte) *Decoder {
	seed := make([]byte, len(source))
	copy(seed, source)
	return &Decoder{
		patch: byteio.NewReader(patchFile),
		out:   byteio.NewBufferFromBytes(seed),
	}
}

// Start verifies the marker and leaves the patch reader positioned at
// the first hunk.
func (d *Decoder) Start() error {
	marker, err := d.patch.ReadExact(len(Marker))
	if err != nil {
		return err
	}
	if !bytes.Equal(marker, Marker) {
		return ErrBadMarker
	}
	return nil
}

// Next applies the next hunk. It returns done=true once the EOF
// sentinel is reached; no further calls should be made after that.
func (d *Decoder) Next() (done bool, err error) {
	prefix, err := d.patch.ReadExact(3)
	if err != nil {
		return false, err
	}
	if bytes.Equal(prefix, eofTag) {
		return true, nil
	}

	offset := int(prefix[0])<<16 | int(prefix[1])<<8 | int(prefix[2])

	lengthBytes, err := d.patch.ReadExact(2)
	if err != nil {
		return false, err
	}
	length := int(lengthBytes[0])<<8 | int(lengthBytes[1])

	if length == 0 {
		if err := d.applyRLE(offset); err != nil {
			return false, err
		}
	} else {
		if err := d.applyRaw(offset, length); err != nil {
			return false, err
		}
	}

	d.hunkCount++
	return false, nil
}

func (d *Decoder) applyRaw(offset, length int) error {
	body, err := d.patch.ReadExact(length)
	if err != nil {
		return err
	}
	d.out.WriteAt(body, offset)
	return nil
}

func (d *Decoder) applyRLE(offset int) error {
	lenBytes, err := d.patch.ReadExact(2)
	if err != nil {
		return err
	}
	rleLength := int(lenBytes[0])<<8 | int(lenBytes[1])

	value, err := d.patch.ReadU8()
	if err != nil {
		return err
	}

	run := make([]byte, rleLength)
	for i := range run {
		run[i] = value
	}
	d.out.WriteAt(run, offset)
	return nil
}

// End performs IPS's (nonexistent) trailer verification; IPS has no
// checksum or size trailer, so this is always a no-op success.
func (d *Decoder) End() error {
	return nil
}

// HunkCount reports the number of hunks applied so far.
func (d *Decoder) HunkCount() uint64 {
	return d.hunkCount
}

// Output returns the decoded target image.
func (d *Decoder) Output() []byte {
	return d.out.Bytes()
}
