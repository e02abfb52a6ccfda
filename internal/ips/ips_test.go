package ips

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func patchFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ips-*.patch")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func applyAll(t *testing.T, d *Decoder) {
	t.Helper()
	require.NoError(t, d.Start())
	for {
		done, err := d.Next()
		require.NoError(t, err)
		if done {
			break
		}
	}
	require.NoError(t, d.End())
}

// Scenario 1 from spec.md §8.
func TestRawHunk(t *testing.T) {
	source := []byte{0, 0, 0, 0, 0}
	patch := append([]byte("PATCH"), 0x00, 0x00, 0x02, 0x00, 0x02, 0xAB, 0xCD)
	patch = append(patch, []byte("EOF")...)

	d := NewDecoder(patchFile(t, patch), source)
	applyAll(t, d)

	require.Equal(t, []byte{0, 0, 0xAB, 0xCD, 0}, d.Output())
	require.Equal(t, uint64(1), d.HunkCount())
}

// Scenario 2 from spec.md §8.
func TestRLEHunk(t *testing.T) {
	source := make([]byte, 8)
	patch := append([]byte("PATCH"), 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x04, 0xFF)
	patch = append(patch, []byte("EOF")...)

	d := NewDecoder(patchFile(t, patch), source)
	applyAll(t, d)

	require.Equal(t, []byte{0, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0}, d.Output())
}

// Scenario 3 from spec.md §8: last write wins on overlapping hunks.
func TestOverlappingHunksLastWriteWins(t *testing.T) {
	source := make([]byte, 6)
	var patch []byte
	patch = append(patch, "PATCH"...)
	patch = append(patch, 0x00, 0x00, 0x02, 0x00, 0x02, 0x11, 0x11)
	patch = append(patch, 0x00, 0x00, 0x03, 0x00, 0x02, 0x22, 0x22)
	patch = append(patch, "EOF"...)

	d := NewDecoder(patchFile(t, patch), source)
	applyAll(t, d)

	// offset 2 writes [0x11,0x11] at [2,3]; offset 3 writes [0x22,0x22] at
	// [3,4], overlaying the second byte of the first hunk.
	require.Equal(t, []byte{0, 0, 0x11, 0x22, 0x22, 0}, d.Output())
	require.Equal(t, uint64(2), d.HunkCount())
}

func TestBadMarkerRejected(t *testing.T) {
	d := NewDecoder(patchFile(t, []byte("NOPE!")), []byte{0})
	require.ErrorIs(t, d.Start(), ErrBadMarker)
}

func TestRLEEquivalenceToRawHunk(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		srcLen := rapid.IntRange(0, 16).Draw(rt, "srcLen")
		source := make([]byte, srcLen)
		offset := rapid.IntRange(0, srcLen+4).Draw(rt, "offset")
		runLen := rapid.IntRange(1, 10).Draw(rt, "runLen")
		value := rapid.Byte().Draw(rt, "value")

		var rle []byte
		rle = append(rle, "PATCH"...)
		rle = append(rle, byte(offset>>16), byte(offset>>8), byte(offset))
		rle = append(rle, 0x00, 0x00)
		rle = append(rle, byte(runLen>>8), byte(runLen))
		rle = append(rle, value)
		rle = append(rle, "EOF"...)

		rawBody := make([]byte, runLen)
		for i := range rawBody {
			rawBody[i] = value
		}
		var raw []byte
		raw = append(raw, "PATCH"...)
		raw = append(raw, byte(offset>>16), byte(offset>>8), byte(offset))
		raw = append(raw, byte(runLen>>8), byte(runLen))
		raw = append(raw, rawBody...)
		raw = append(raw, "EOF"...)

		rleDecoder := NewDecoder(patchFile(t, rle), source)
		applyAll(t, rleDecoder)

		rawDecoder := NewDecoder(patchFile(t, raw), source)
		applyAll(t, rawDecoder)

		require.Equal(t, rawDecoder.Output(), rleDecoder.Output())
	})
}
