package runtime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/queue"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Queue.FileSize = 1 << 20
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestAppendCommitResume(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	rt, err := Open(Options{Config: cfg, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	app := rt.Queue().NewAppender()
	for i := 0; i < 3; i++ {
		if _, err := app.Append(ctx, []byte("m")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := rt.Cursors().Commit(ctx, "billing", 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	if got := rt.Queue().CurrentSequence(); got != 3 {
		t.Fatalf("expected next 3, got %d", got)
	}
	from, err := rt.Cursors().Resume("billing", 0)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if from != 2 {
		t.Fatalf("expected resume at 2, got %d", from)
	}
	tl, err := rt.Queue().NewTailer(from)
	if err != nil {
		t.Fatalf("tailer: %v", err)
	}
	defer tl.Close()
	m, err := tl.Next(ctx)
	if err != nil || m.Sequence != 2 {
		t.Fatalf("expected seq 2, got %d (%v)", m.Sequence, err)
	}
	if _, err := tl.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cursors.Fsync = "sometimes"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestSecondOpenLocked(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, err := Open(Options{Config: cfg}); !errors.Is(err, queue.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
