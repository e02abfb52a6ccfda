// Package bps implements the BPS (Binary Patch System) patch decoder:
// marker check, header parsing, a four-opcode action loop over two
// independent cursors, and trailer checksum verification (spec.md
// §4.4). It generalizes the slurp-the-whole-patch approach of
// github.com/mgius/bps into a streaming decoder: the patch file is read
// sequentially through a CRC-accumulating wrapper (so the patch_crc
// trailer check falls out of the same pass that decodes the actions),
// while the source is held in memory for SourceCopy's random access and
// the target is built in an in-memory buffer so TargetCopy can read
// bytes it has only just written.
package bps

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mgius/rombp/internal/byteio"
	"github.com/mgius/rombp/internal/crc"
	"github.com/mgius/rombp/internal/patcherr"
)

// Marker is the 4-byte ASCII signature every BPS patch file starts
// with.
var Marker = []byte("BPS1")

// ErrBadMarker is returned by Start when the patch stream does not
// begin with the BPS marker.
var ErrBadMarker = errors.New("bps: missing BPS1 marker")

const (
	opSourceRead = iota
	opTargetRead
	opSourceCopy
	opTargetCopy
)

// Decoder streams a BPS patch against an in-memory source image,
// producing an in-memory target image.
type Decoder struct {
	crcR *crc.Reader
	r    *byteio.Reader

	sourceSize uint64
	targetSize uint64
	metadata   []byte

	source []byte
	out    *byteio.Buffer

	outPos       uint64
	sourceCursor int64
	targetCursor int64

	sourceCRC crc.Accumulator
	targetCRC crc.Accumulator

	hunkCount uint64
}

// NewDecoder builds a decoder reading the patch sequentially from
// patchFile (positioned at offset 0, i.e. before the marker) against
// source, an in-memory copy of the source ROM.
func NewDecoder(patchFile *os.File, source []byte) *Decoder {
	// Only the bytes before the final 4-byte patch checksum pass through
	// the CRC wrapper, so the buffered reader's read-ahead cannot fold
	// the checksum's own bytes into the accumulator.
	var covered int64
	if info, err := patchFile.Stat(); err == nil && info.Size() > 4 {
		covered = info.Size() - 4
	}
	crcR := crc.NewReader(io.LimitReader(patchFile, covered))
	return &Decoder{
		crcR:      crcR,
		r:         byteio.NewStreamReader(io.MultiReader(crcR, patchFile)),
		source:    source,
		sourceCRC: crc.New(),
		targetCRC: crc.New(),
	}
}

// Start verifies the marker, parses the header (sizes and opaque
// metadata), and allocates the target buffer.
func (d *Decoder) Start() error {
	marker, err := d.r.ReadExact(len(Marker))
	if err != nil {
		return err
	}
	if !bytes.Equal(marker, Marker) {
		return ErrBadMarker
	}

	sourceSize, err := d.r.ReadVarint()
	if err != nil {
		return err
	}
	targetSize, err := d.r.ReadVarint()
	if err != nil {
		return err
	}
	metadataLen, err := d.r.ReadVarint()
	if err != nil {
		return err
	}

	var metadata []byte
	if metadataLen > 0 {
		metadata, err = d.r.ReadExact(int(metadataLen))
		if err != nil {
			return err
		}
	}

	if uint64(len(d.source)) < sourceSize {
		return fmt.Errorf("bps: source is %d bytes, header declares source_size %d", len(d.source), sourceSize)
	}

	d.sourceSize = sourceSize
	d.targetSize = targetSize
	d.metadata = metadata
	d.out = byteio.NewBuffer(int(targetSize))
	return nil
}

// Next applies the next action. It returns done=true once out_pos has
// reached target_size; no further calls should be made after that
// (call End to verify the trailer).
func (d *Decoder) Next() (done bool, err error) {
	if d.outPos >= d.targetSize {
		return true, nil
	}

	header, err := d.r.ReadVarint()
	if err != nil {
		return false, err
	}
	opcode := header & 0b11
	length := (header >> 2) + 1

	switch opcode {
	case opSourceRead:
		err = d.applySourceRead(length)
	case opTargetRead:
		err = d.applyTargetRead(length)
	case opSourceCopy:
		err = d.applySourceCopy(length)
	case opTargetCopy:
		err = d.applyTargetCopy(length)
	}
	if err != nil {
		return false, err
	}

	d.hunkCount++
	return d.outPos >= d.targetSize, nil
}

func (d *Decoder) applySourceRead(length uint64) error {
	n := int(length)
	start := int(d.outPos)
	if start+n > len(d.source) {
		return fmt.Errorf("bps: SourceRead at %d len %d exceeds source length %d", start, n, len(d.source))
	}
	chunk := d.source[start : start+n]
	d.out.WriteAt(chunk, start)
	d.sourceCRC = d.sourceCRC.Update(chunk)
	d.targetCRC = d.targetCRC.Update(chunk)
	d.outPos += length
	return nil
}

func (d *Decoder) applyTargetRead(length uint64) error {
	chunk, err := d.r.ReadExact(int(length))
	if err != nil {
		return err
	}
	d.out.WriteAt(chunk, int(d.outPos))
	d.targetCRC = d.targetCRC.Update(chunk)
	d.outPos += length
	return nil
}

func (d *Decoder) applySourceCopy(length uint64) error {
	delta, err := d.r.ReadSignedVarint()
	if err != nil {
		return err
	}
	d.sourceCursor += delta

	n := int(length)
	start := int(d.sourceCursor)
	if start < 0 || start+n > len(d.source) {
		return fmt.Errorf("bps: SourceCopy cursor %d len %d out of source bounds (%d)", start, n, len(d.source))
	}
	chunk := d.source[start : start+n]
	d.out.WriteAt(chunk, int(d.outPos))
	d.sourceCRC = d.sourceCRC.Update(chunk)
	d.targetCRC = d.targetCRC.Update(chunk)
	d.sourceCursor += int64(length)
	d.outPos += length
	return nil
}

// applyTargetCopy copies length bytes one at a time, since a run may
// legitimately read bytes this very action has already written (the
// RLE-propagation hazard described in spec.md §4.4): pre-buffering a
// window would read stale data for any gap smaller than length.
func (d *Decoder) applyTargetCopy(length uint64) error {
	delta, err := d.r.ReadSignedVarint()
	if err != nil {
		return err
	}
	d.targetCursor += delta
	if d.targetCursor < 0 || uint64(d.targetCursor) >= d.outPos {
		return fmt.Errorf("bps: TargetCopy cursor %d outside written target (%d bytes)", d.targetCursor, d.outPos)
	}

	for i := uint64(0); i < length; i++ {
		b := d.out.ReadByteAt(int(d.targetCursor))
		d.out.WriteAt([]byte{b}, int(d.outPos))
		d.targetCRC = d.targetCRC.Update([]byte{b})
		d.targetCursor++
		d.outPos++
	}
	return nil
}

// End verifies the trailer, reporting the first failing check in the
// order spec.md §4.4 specifies: output size, then source checksum, then
// target checksum, then patch checksum.
func (d *Decoder) End() error {
	if d.outPos != d.targetSize {
		return patcherr.New(patcherr.InvalidOutputSize,
			fmt.Errorf("wrote %d bytes, header declared target_size %d", d.outPos, d.targetSize))
	}

	sourceCRCExpected, err := d.r.ReadU32LE()
	if err != nil {
		return err
	}
	targetCRCExpected, err := d.r.ReadU32LE()
	if err != nil {
		return err
	}

	// The patch checksum covers every byte up to (but not including) its
	// own 4 trailer bytes; NewDecoder keeps those bytes out of the CRC
	// wrapper, so by now the accumulator holds exactly that span.
	patchCRCSnapshot := d.crcR.Snapshot()

	patchCRCExpected, err := d.r.ReadU32LE()
	if err != nil {
		return err
	}

	if d.sourceCRC.Finalize() != sourceCRCExpected {
		return patcherr.New(patcherr.InvalidOutputChecksum, errors.New("source checksum mismatch"))
	}
	if d.targetCRC.Finalize() != targetCRCExpected {
		return patcherr.New(patcherr.InvalidOutputChecksum, errors.New("target checksum mismatch"))
	}
	if patchCRCSnapshot.Finalize() != patchCRCExpected {
		return patcherr.New(patcherr.InvalidOutputChecksum, errors.New("patch checksum mismatch"))
	}
	return nil
}

// HunkCount reports the number of actions applied so far.
func (d *Decoder) HunkCount() uint64 {
	return d.hunkCount
}

// Output returns the decoded target image, truncated to target_size if
// the buffer somehow grew past it.
func (d *Decoder) Output() []byte {
	if uint64(d.out.Len()) > d.targetSize {
		return d.out.Bytes()[:d.targetSize]
	}
	return d.out.Bytes()
}

// Metadata returns the opaque metadata blob from the header, if any.
func (d *Decoder) Metadata() []byte {
	return d.metadata
}
