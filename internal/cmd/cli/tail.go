package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/flolog/internal/cursor"
	"github.com/rzbill/flolog/internal/filter"
	"github.com/rzbill/flolog/internal/queue"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

func newTailCommand(a *app) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print messages from a position, optionally following new appends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetString("from")
			at, _ := cmd.Flags().GetString("at")
			follow, _ := cmd.Flags().GetBool("follow")
			group, _ := cmd.Flags().GetString("group")
			expr, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			f, err := filter.New(expr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := a.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			q := rt.Queue()

			start, err := startSequence(q, rt.Cursors(), group, from, cmd.Flags().Changed("from"), at)
			if err != nil {
				return err
			}
			mode := queue.Replay
			if follow {
				mode = queue.Follow
			}
			tl, err := q.NewTailer(start, queue.WithMode(mode))
			if err != nil {
				return err
			}
			defer tl.Close()

			logger := a.logger.WithComponent("tail")
			logger.Debug("tail starting",
				logpkg.Uint64("from", start),
				logpkg.Str("mode", mode.String()),
				logpkg.Str("group", group),
				logpkg.Str("filter", f.String()),
			)

			src := filter.NewTailer(tl, f)
			msgs := make(chan queue.Message, 64)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer close(msgs)
				for n := 0; limit <= 0 || n < limit; {
					m, err := src.Next(gctx)
					var cerr *queue.CorruptedMessageError
					switch {
					case err == nil:
					case errors.Is(err, io.EOF):
						return nil
					case errors.As(err, &cerr):
						logger.Warn("skipping corrupted message",
							logpkg.Uint64("sequence", cerr.Sequence),
							logpkg.Str("reason", cerr.Reason),
						)
						if err := tl.Skip(); err != nil {
							return err
						}
						continue
					default:
						return err
					}
					select {
					case msgs <- m:
						n++
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
			g.Go(func() error {
				w := cmd.OutOrStdout()
				for m := range msgs {
					if err := printMessage(w, m, asJSON); err != nil {
						return err
					}
					if group == "" {
						continue
					}
					if err := rt.Cursors().Commit(gctx, group, m.Sequence); err != nil {
						return err
					}
				}
				return nil
			})
			err = g.Wait()
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				// interrupted
				return nil
			}
			if dropped := src.Dropped(); dropped > 0 {
				logger.Debug("filtered out", logpkg.Uint64("messages", dropped))
			}
			return err
		},
	}
	tailCmd.Flags().String("from", "earliest", "Start position: earliest|latest|<sequence>")
	tailCmd.Flags().String("at", "", "Start at the first message written at or after a time (RFC3339 or unix ms)")
	tailCmd.Flags().Bool("follow", false, "Keep waiting for new messages")
	tailCmd.Flags().String("group", "", "Consumer group: resume after its cursor and commit printed messages")
	tailCmd.Flags().String("filter", "", "CEL predicate over sequence, ts_us, size, text, json, now_us")
	tailCmd.Flags().Int("limit", 0, "Stop after this many messages (0 = no limit)")
	tailCmd.Flags().Bool("json", false, "Print one JSON object per message")
	return tailCmd
}

// startSequence picks the first sequence to read. Precedence: --at, an
// explicit --from, the group's cursor, then --from's default.
func startSequence(q *queue.Queue, cursors *cursor.Store, group, from string, fromSet bool, at string) (uint64, error) {
	if at != "" {
		ts, err := parseAt(at)
		if err != nil {
			return 0, err
		}
		return q.SequenceAt(ts)
	}
	if group != "" && !fromSet {
		return cursors.Resume(group, q.Stats().FirstSequence)
	}
	switch from {
	case "", "earliest":
		return q.Stats().FirstSequence, nil
	case "latest":
		return q.CurrentSequence(), nil
	}
	seq, err := strconv.ParseUint(from, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --from %q; use earliest|latest|<sequence>", from)
	}
	return seq, nil
}

func parseAt(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --at; expected ms or RFC3339")
}
