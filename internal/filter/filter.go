// Package filter compiles CEL predicates over queue messages.
//
// Expressions see these variables:
//
//	sequence  int     message sequence
//	ts_us     int     write timestamp, microseconds (index resolution)
//	size      int     payload length
//	text      string  payload as a string
//	json      dyn     payload parsed as JSON, null when it is not JSON
//	now_us    int     evaluation time, microseconds
//
// For example `json.level == "error" && size < 4096`.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/flolog/internal/queue"
)

// Filter is a compiled predicate. The zero value and a Filter built from an
// empty expression match everything.
type Filter struct {
	expr    string
	prog    cel.Program
	enabled bool
}

// New compiles expr. The expression must evaluate to a bool.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_us", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("now_us", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	if t := checked.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, fmt.Errorf("filter: expression yields %s, want bool", t)
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{expr: expr, prog: prog, enabled: true}, nil
}

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Match evaluates the predicate against m. Evaluation errors, such as a
// missing JSON field, count as no match.
func (f Filter) Match(m queue.Message) bool {
	if !f.enabled {
		return true
	}
	var doc any
	if err := json.Unmarshal(m.Payload, &doc); err != nil {
		doc = nil
	}
	out, _, err := f.prog.Eval(map[string]any{
		"sequence": int64(m.Sequence),
		"ts_us":    int64(m.Timestamp),
		"size":     int64(len(m.Payload)),
		"text":     string(m.Payload),
		"json":     doc,
		"now_us":   time.Now().UnixMicro(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Source is what Tailer reads from; *queue.Tailer satisfies it.
type Source interface {
	Next(ctx context.Context) (queue.Message, error)
}

// Tailer yields only the messages of src that match f.
type Tailer struct {
	src     Source
	f       Filter
	dropped uint64
}

func NewTailer(src Source, f Filter) *Tailer {
	return &Tailer{src: src, f: f}
}

// Next returns the next matching message. Errors from src, including
// io.EOF and corruption, are returned unchanged.
func (t *Tailer) Next(ctx context.Context) (queue.Message, error) {
	for {
		m, err := t.src.Next(ctx)
		if err != nil {
			return queue.Message{}, err
		}
		if t.f.Match(m) {
			return m, nil
		}
		t.dropped++
	}
}

// Dropped is the number of messages that did not match so far.
func (t *Tailer) Dropped() uint64 { return t.dropped }
