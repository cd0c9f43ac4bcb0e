package queue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	manifestFileName = "MANIFEST"
	manifestTmpName  = "MANIFEST.tmp"
	manifestMagic    = "FLQM"
	// ManifestVersion is the only manifest format this package reads.
	ManifestVersion uint32 = 1

	manifestHeaderSize = 12
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Manifest is the durable record of the segments that make up a queue.
// Segments are ordered by base sequence; only the last may be unsealed.
type Manifest struct {
	Version       uint32
	Origin        uint64
	IndexInterval uint64
	Segments      []SegmentInfo
}

// NextSequence is the sequence the writer assigns next, per the manifest.
func (m *Manifest) NextSequence() uint64 {
	if len(m.Segments) == 0 {
		return m.Origin
	}
	return m.Segments[len(m.Segments)-1].NextSequence()
}

// Active returns the unsealed tail segment, if any.
func (m *Manifest) Active() (*SegmentInfo, bool) {
	if len(m.Segments) == 0 || m.Segments[len(m.Segments)-1].Sealed {
		return nil, false
	}
	return &m.Segments[len(m.Segments)-1], true
}

func (m *Manifest) clone() *Manifest {
	c := *m
	c.Segments = append([]SegmentInfo(nil), m.Segments...)
	return &c
}

// validate checks the structural rules a decoded manifest must satisfy.
func (m *Manifest) validate() error {
	next := m.Origin
	for i, s := range m.Segments {
		if s.BaseSequence != next {
			return fmt.Errorf("%w: segment %d starts at %d, want %d", ErrManifestCorrupted, i, s.BaseSequence, next)
		}
		if !s.Sealed && i != len(m.Segments)-1 {
			return fmt.Errorf("%w: unsealed segment %d is not the last", ErrManifestCorrupted, s.BaseSequence)
		}
		next = s.NextSequence()
	}
	if m.IndexInterval == 0 {
		return fmt.Errorf("%w: zero index interval", ErrManifestCorrupted)
	}
	return nil
}

// protobuf field numbers
const (
	fieldOrigin        protowire.Number = 1
	fieldIndexInterval protowire.Number = 2
	fieldSegment       protowire.Number = 3

	fieldSegBase      protowire.Number = 1
	fieldSegCount     protowire.Number = 2
	fieldSegSize      protowire.Number = 3
	fieldSegSealed    protowire.Number = 4
	fieldSegCreatedAt protowire.Number = 5
)

func (m *Manifest) marshalBody() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOrigin, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Origin)
	b = protowire.AppendTag(b, fieldIndexInterval, protowire.VarintType)
	b = protowire.AppendVarint(b, m.IndexInterval)
	var seg []byte
	for _, s := range m.Segments {
		seg = seg[:0]
		seg = protowire.AppendTag(seg, fieldSegBase, protowire.VarintType)
		seg = protowire.AppendVarint(seg, s.BaseSequence)
		seg = protowire.AppendTag(seg, fieldSegCount, protowire.VarintType)
		seg = protowire.AppendVarint(seg, s.Count)
		seg = protowire.AppendTag(seg, fieldSegSize, protowire.VarintType)
		seg = protowire.AppendVarint(seg, s.SizeBytes)
		seg = protowire.AppendTag(seg, fieldSegSealed, protowire.VarintType)
		seg = protowire.AppendVarint(seg, protowire.EncodeBool(s.Sealed))
		seg = protowire.AppendTag(seg, fieldSegCreatedAt, protowire.VarintType)
		seg = protowire.AppendVarint(seg, s.CreatedAt)
		b = protowire.AppendTag(b, fieldSegment, protowire.BytesType)
		b = protowire.AppendBytes(b, seg)
	}
	return b
}

// MarshalBinary encodes the manifest with its header and checksum.
func (m *Manifest) MarshalBinary() ([]byte, error) {
	body := m.marshalBody()
	out := make([]byte, manifestHeaderSize, manifestHeaderSize+len(body)+4)
	copy(out, manifestMagic)
	binary.LittleEndian.PutUint32(out[4:], ManifestVersion)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(body)))
	out = append(out, body...)
	return binary.LittleEndian.AppendUint32(out, crc32.Checksum(body, castagnoli)), nil
}

// UnmarshalBinary decodes a manifest image. The version is checked before
// the checksum so that newer formats are reported as such.
func (m *Manifest) UnmarshalBinary(b []byte) error {
	if len(b) < manifestHeaderSize+4 || string(b[:4]) != manifestMagic {
		return fmt.Errorf("%w: bad header", ErrManifestCorrupted)
	}
	if v := binary.LittleEndian.Uint32(b[4:]); v != ManifestVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedManifestVersion, v)
	}
	n := int(binary.LittleEndian.Uint32(b[8:]))
	if len(b) != manifestHeaderSize+n+4 {
		return fmt.Errorf("%w: body length %d does not match file size %d", ErrManifestCorrupted, n, len(b))
	}
	body := b[manifestHeaderSize : manifestHeaderSize+n]
	if crc32.Checksum(body, castagnoli) != binary.LittleEndian.Uint32(b[manifestHeaderSize+n:]) {
		return fmt.Errorf("%w: checksum mismatch", ErrManifestCorrupted)
	}
	*m = Manifest{Version: ManifestVersion}
	err := consumeFields(body, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch {
		case num == fieldOrigin && typ == protowire.VarintType:
			m.Origin = v
		case num == fieldIndexInterval && typ == protowire.VarintType:
			m.IndexInterval = v
		case num == fieldSegment && typ == protowire.BytesType:
			s, err := unmarshalSegment(raw)
			if err != nil {
				return err
			}
			m.Segments = append(m.Segments, s)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifestCorrupted, err)
	}
	return nil
}

func unmarshalSegment(b []byte) (SegmentInfo, error) {
	var s SegmentInfo
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case fieldSegBase:
			s.BaseSequence = v
		case fieldSegCount:
			s.Count = v
		case fieldSegSize:
			s.SizeBytes = v
		case fieldSegSealed:
			s.Sealed = protowire.DecodeBool(v)
		case fieldSegCreatedAt:
			s.CreatedAt = v
		}
		return nil
	})
	return s, err
}

// consumeFields walks a protobuf message, handing varint values and
// length-delimited payloads to fn. Other wire types are skipped.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ == protowire.VarintType || typ == protowire.BytesType {
			if err := fn(num, typ, v, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadManifest loads the manifest in dir. A missing manifest is reported as
// an error wrapping os.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return m, nil
}

// writeManifest atomically replaces the manifest in dir: temp file, fsync,
// rename, directory fsync.
func writeManifest(dir string, m *Manifest) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, manifestTmpName)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestFileName)); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}
