package queue

import (
	"encoding/binary"
	"hash/crc64"
)

const (
	frameLengthSize   = 4
	frameChecksumSize = 8
	frameOverhead     = frameLengthSize + frameChecksumSize
)

var ecma = crc64.MakeTable(crc64.ECMA)

// Message is one record read back from the log.
type Message struct {
	Sequence uint64
	// Timestamp is the write time in microseconds since the Unix epoch, taken
	// from the closest preceding index entry of the segment.
	Timestamp uint64
	Payload   []byte
}

// FrameSize returns the on-disk size of a frame carrying n payload bytes.
func FrameSize(n int) int { return n + frameOverhead }

func frameChecksum(lenBytes, payload []byte) uint64 {
	crc := crc64.Update(0, ecma, lenBytes)
	return crc64.Update(crc, ecma, payload)
}

// AppendFrame appends the encoded frame for payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	var hdr [frameLengthSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint64(dst, frameChecksum(hdr[:], payload))
}

// EncodeFrame returns a freshly allocated frame for payload.
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, FrameSize(len(payload))), payload)
}

// DecodeFrame decodes the frame at the head of b, which may hold more data
// after it. It returns the payload (aliasing b) and the frame size.
// ErrShortFrame means b ends before the frame does.
func DecodeFrame(b []byte, seq uint64) ([]byte, int, error) {
	if len(b) < frameOverhead {
		return nil, 0, ErrShortFrame
	}
	n := int(binary.LittleEndian.Uint32(b))
	total := FrameSize(n)
	if total < frameOverhead || len(b) < total {
		return nil, 0, ErrShortFrame
	}
	payload := b[frameLengthSize : frameLengthSize+n]
	want := binary.LittleEndian.Uint64(b[frameLengthSize+n : total])
	if frameChecksum(b[:frameLengthSize], payload) != want {
		return nil, 0, corrupted(seq, -1, "checksum mismatch")
	}
	return payload, total, nil
}

// ParseFrame decodes frame, which must be exactly one encoded frame.
func ParseFrame(frame []byte, seq uint64) ([]byte, error) {
	if len(frame) < frameOverhead {
		return nil, corrupted(seq, -1, "frame shorter than header")
	}
	n := binary.LittleEndian.Uint32(frame)
	if uint64(n)+frameOverhead != uint64(len(frame)) {
		return nil, corrupted(seq, -1, "length field disagrees with frame size")
	}
	payload, _, err := DecodeFrame(frame, seq)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// frameLength reads the declared payload length of the frame at the head of
// b without verifying anything.
func frameLength(b []byte) (int, bool) {
	if len(b) < frameLengthSize {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(b)), true
}
