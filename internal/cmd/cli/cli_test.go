package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// run executes the root command against dir and returns stdout.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--data-dir", dir, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, stdin, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestAppendArgsAndTail(t *testing.T) {
	dir := t.TempDir()
	out := mustRun(t, dir, "", "append", "a", "b", "c")
	if !strings.Contains(out, "appended 3 messages (sequences 0..2)") {
		t.Fatalf("unexpected append output: %q", out)
	}
	out = mustRun(t, dir, "", "tail")
	if out != "0\ta\n1\tb\n2\tc\n" {
		t.Fatalf("unexpected tail output: %q", out)
	}
	out = mustRun(t, dir, "", "tail", "--from", "1", "--limit", "1")
	if out != "1\tb\n" {
		t.Fatalf("unexpected limited tail: %q", out)
	}
	out = mustRun(t, dir, "", "tail", "--from", "latest")
	if out != "" {
		t.Fatalf("expected nothing after latest, got %q", out)
	}
}

func TestAppendStdinBatches(t *testing.T) {
	dir := t.TempDir()
	out := mustRun(t, dir, "one\n\ntwo\nthree\n", "append", "--batch", "2")
	if !strings.Contains(out, "appended 3 messages (sequences 0..2)") {
		t.Fatalf("unexpected append output: %q", out)
	}
	out = mustRun(t, dir, "", "tail", "--json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["payload_text"] != "three" || m["sequence"] != float64(2) {
		t.Fatalf("unexpected message: %v", m)
	}
}

func TestTailGroupResumes(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "", "append", "a", "b", "c")
	out := mustRun(t, dir, "", "tail", "--group", "billing", "--limit", "2")
	if out != "0\ta\n1\tb\n" {
		t.Fatalf("first read: %q", out)
	}
	out = mustRun(t, dir, "", "tail", "--group", "billing")
	if out != "2\tc\n" {
		t.Fatalf("resumed read: %q", out)
	}
	out = mustRun(t, dir, "", "cursors", "list")
	if !strings.Contains(out, "billing") {
		t.Fatalf("cursor not listed: %q", out)
	}
	mustRun(t, dir, "", "cursors", "delete", "billing")
	out = mustRun(t, dir, "", "tail", "--group", "billing", "--limit", "1")
	if out != "0\ta\n" {
		t.Fatalf("after delete: %q", out)
	}
}

func TestTailFilter(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "", "append", `{"level":"info"}`, `{"level":"error"}`, "plain")
	out := mustRun(t, dir, "", "tail", "--filter", `json.level == "error"`)
	if out != "1\t{\"level\":\"error\"}\n" {
		t.Fatalf("unexpected filtered output: %q", out)
	}
	if _, err := run(t, dir, "", "tail", "--filter", "size +"); err == nil {
		t.Fatalf("expected invalid filter error")
	}
}

func TestInspectAndVerify(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "", "append", "a", "b")
	out := mustRun(t, dir, "", "inspect")
	if !strings.Contains(out, "next sequence:  2") || !strings.Contains(out, "active") {
		t.Fatalf("unexpected inspect output: %q", out)
	}
	out = mustRun(t, dir, "", "verify")
	if !strings.Contains(out, "all 1 segments verified") {
		t.Fatalf("unexpected verify output: %q", out)
	}
}

func TestBadFromRejected(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "", "append", "a")
	if _, err := run(t, dir, "", "tail", "--from", "soon"); err == nil {
		t.Fatalf("expected error for bad --from")
	}
	if _, err := run(t, dir, "", "tail", "--from", "9"); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}
