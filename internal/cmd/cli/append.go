package cli

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const maxLineBytes = 16 << 20

func newAppendCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append [payload...]",
		Short: "Append messages; reads one message per stdin line when no payload is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")
			if batch <= 0 {
				batch = 1
			}
			rt, err := a.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			appender := rt.Queue().NewAppender()
			var (
				total       int
				first, last uint64
			)
			flush := func(payloads [][]byte) error {
				if len(payloads) == 0 {
					return nil
				}
				seqs, err := appender.AppendBatch(cmd.Context(), payloads)
				if len(seqs) > 0 {
					if total == 0 {
						first = seqs[0]
					}
					last = seqs[len(seqs)-1]
					total += len(seqs)
				}
				return err
			}

			if len(args) > 0 {
				payloads := make([][]byte, len(args))
				for i, s := range args {
					payloads[i] = []byte(s)
				}
				for len(payloads) > 0 {
					n := min(batch, len(payloads))
					if err := flush(payloads[:n]); err != nil {
						return err
					}
					payloads = payloads[n:]
				}
			} else if err := appendLines(cmd.InOrStdin(), batch, flush); err != nil {
				return err
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "appended 0 messages")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appended %d messages (sequences %d..%d)\n", total, first, last)
			return nil
		},
	}
	cmd.Flags().Int("batch", 64, "Messages per AppendBatch call when reading stdin")
	return cmd
}

// appendLines feeds non-empty lines of r to flush in groups of batch.
func appendLines(r io.Reader, batch int, flush func([][]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	pending := make([][]byte, 0, batch)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		pending = append(pending, append([]byte(nil), line...))
		if len(pending) == batch {
			if err := flush(pending); err != nil {
				return err
			}
			pending = pending[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return flush(pending)
}
