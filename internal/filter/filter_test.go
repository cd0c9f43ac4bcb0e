package filter

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/queue"
)

func msg(seq uint64, payload string) queue.Message {
	return queue.Message{Sequence: seq, Timestamp: 1_700_000_000_000_000, Payload: []byte(payload)}
}

func TestEmptyExpressionMatchesEverything(t *testing.T) {
	f, err := New("  ")
	require.NoError(t, err)
	require.True(t, f.Match(msg(1, "anything")))
	require.True(t, Filter{}.Match(msg(1, "")))
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		expr string
		m    queue.Message
		want bool
	}{
		{`sequence >= 10`, msg(10, "x"), true},
		{`sequence >= 10`, msg(9, "x"), false},
		{`size > 3`, msg(1, "abcd"), true},
		{`text.startsWith("err")`, msg(1, "error: disk"), true},
		{`json.level == "error"`, msg(1, `{"level":"error"}`), true},
		{`json.level == "error"`, msg(1, `{"level":"info"}`), false},
		{`json.level == "error"`, msg(1, `not json`), false},
		{`ts_us < now_us`, msg(1, "x"), true},
	}
	for _, c := range cases {
		f, err := New(c.expr)
		require.NoError(t, err, c.expr)
		require.Equal(t, c.want, f.Match(c.m), "%s on %q", c.expr, c.m.Payload)
	}
}

func TestRejectsBadExpressions(t *testing.T) {
	_, err := New(`sequence >`)
	require.Error(t, err)
	_, err = New(`unknown_var == 1`)
	require.Error(t, err)
	_, err = New(`size + 1`)
	require.Error(t, err)
}

type sliceSource struct{ msgs []queue.Message }

func (s *sliceSource) Next(context.Context) (queue.Message, error) {
	if len(s.msgs) == 0 {
		return queue.Message{}, io.EOF
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func TestTailerSkipsNonMatching(t *testing.T) {
	f, err := New(`sequence % 2 == 0`)
	require.NoError(t, err)
	src := &sliceSource{msgs: []queue.Message{msg(0, "a"), msg(1, "b"), msg(2, "c"), msg(3, "d")}}
	tl := NewTailer(src, f)

	var got []uint64
	for {
		m, err := tl.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, m.Sequence)
	}
	require.Equal(t, []uint64{0, 2}, got)
	require.Equal(t, uint64(2), tl.Dropped())
}
