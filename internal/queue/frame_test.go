package queue

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{{}, []byte("x"), []byte("hello, log"), bytes.Repeat([]byte{0xab}, 64<<10)} {
		frame := EncodeFrame(payload)
		require.Len(t, frame, FrameSize(len(payload)))

		got, err := ParseFrame(frame, 7)
		require.NoError(t, err)
		require.Equal(t, payload, got)

		// streaming decode tolerates trailing data
		got, n, err := DecodeFrame(append(frame, 1, 2, 3), 7)
		require.NoError(t, err)
		require.Equal(t, len(frame), n)
		require.Equal(t, payload, got)
	}
}

func TestFrameSizeAddsTwelve(t *testing.T) {
	for _, n := range []int{0, 1, 100, 1 << 20} {
		require.Equal(t, n+12, FrameSize(n))
	}
}

func TestEveryByteFlipIsDetected(t *testing.T) {
	frame := EncodeFrame([]byte("sequence matters"))
	for i := range frame {
		bad := append([]byte(nil), frame...)
		bad[i] ^= 0x01
		_, err := ParseFrame(bad, 42)
		require.ErrorIs(t, err, ErrCorruptedMessage, "byte %d", i)

		var cerr *CorruptedMessageError
		require.True(t, errors.As(err, &cerr))
		require.Equal(t, uint64(42), cerr.Sequence)
	}
}

func TestDecodeFrameShortBuffer(t *testing.T) {
	frame := EncodeFrame([]byte("abcdef"))
	for _, n := range []int{0, 3, 11, len(frame) - 1} {
		_, _, err := DecodeFrame(frame[:n], 0)
		require.ErrorIs(t, err, ErrShortFrame, "len %d", n)
	}
	_, err := ParseFrame(frame[:5], 3)
	require.ErrorIs(t, err, ErrCorruptedMessage)
}

func TestAppendFrameReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	a := AppendFrame(buf, []byte("one"))
	b := AppendFrame(a, []byte("two"))

	p1, n, err := DecodeFrame(b, 0)
	require.NoError(t, err)
	require.Equal(t, "one", string(p1))
	p2, _, err := DecodeFrame(b[n:], 1)
	require.NoError(t, err)
	require.Equal(t, "two", string(p2))
}
