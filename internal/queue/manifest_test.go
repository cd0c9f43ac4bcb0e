package queue

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Version:       ManifestVersion,
		Origin:        100,
		IndexInterval: 64,
		Segments: []SegmentInfo{
			{BaseSequence: 100, Count: 10, SizeBytes: 520, Sealed: true, CreatedAt: 1700000000000000},
			{BaseSequence: 110, Count: 3, SizeBytes: 156, CreatedAt: 1700000000500000},
		},
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := sampleManifest()
	b, err := m.MarshalBinary()
	require.NoError(t, err)

	var got Manifest
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *m, got)
	require.Equal(t, uint64(113), got.NextSequence())

	act, ok := got.Active()
	require.True(t, ok)
	require.Equal(t, uint64(110), act.BaseSequence)
}

func TestManifestRejectsUnknownVersion(t *testing.T) {
	b, err := sampleManifest().MarshalBinary()
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(b[4:], ManifestVersion+1)

	var m Manifest
	require.ErrorIs(t, m.UnmarshalBinary(b), ErrUnsupportedManifestVersion)
}

func TestManifestDetectsCorruption(t *testing.T) {
	b, err := sampleManifest().MarshalBinary()
	require.NoError(t, err)

	body := append([]byte(nil), b...)
	body[manifestHeaderSize+2] ^= 0xff
	var m Manifest
	require.ErrorIs(t, m.UnmarshalBinary(body), ErrManifestCorrupted)

	magic := append([]byte(nil), b...)
	copy(magic, "XXXX")
	require.ErrorIs(t, m.UnmarshalBinary(magic), ErrManifestCorrupted)

	require.ErrorIs(t, m.UnmarshalBinary(b[:len(b)-1]), ErrManifestCorrupted)
}

func TestManifestValidateRequiresContiguousSegments(t *testing.T) {
	m := sampleManifest()
	m.Segments[1].BaseSequence = 111
	require.ErrorIs(t, m.validate(), ErrManifestCorrupted)

	m = sampleManifest()
	m.Segments[0].Sealed = false
	require.ErrorIs(t, m.validate(), ErrManifestCorrupted)
}

func TestWriteManifestReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	m := sampleManifest()
	require.NoError(t, writeManifest(dir, m))
	m.Segments[1].Count = 4
	require.NoError(t, writeManifest(dir, m))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	require.Equal(t, uint64(4), got.Segments[1].Count)
	_, err = os.Stat(filepath.Join(dir, manifestTmpName))
	require.True(t, os.IsNotExist(err))
}
