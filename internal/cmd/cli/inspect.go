package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rzbill/flolog/internal/queue"
)

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the manifest's segments without opening the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.cfg.QueueDir()
			m, err := queue.ReadManifest(dir)
			if err != nil {
				return fmt.Errorf("read manifest in %s: %w", dir, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "directory:      %s\n", dir)
			fmt.Fprintf(w, "version:        %d\n", m.Version)
			fmt.Fprintf(w, "origin:         %d\n", m.Origin)
			fmt.Fprintf(w, "index interval: %d\n", m.IndexInterval)
			fmt.Fprintf(w, "next sequence:  %d (checkpoint)\n", m.NextSequence())
			var total uint64
			for _, s := range m.Segments {
				total += s.SizeBytes
			}
			fmt.Fprintf(w, "segments:       %d, %s\n\n", len(m.Segments), humanize.IBytes(total))
			return writeSegmentTable(w, m.Segments)
		},
	}
}

func writeSegmentTable(w io.Writer, segs []queue.SegmentInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BASE\tCOUNT\tSIZE\tSTATE\tCREATED")
	for _, s := range segs {
		state := "active"
		if s.Sealed {
			state = "sealed"
		}
		created := "-"
		if s.CreatedAt > 0 {
			created = humanize.Time(time.UnixMicro(int64(s.CreatedAt)))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			s.BaseSequence, humanize.Comma(int64(s.Count)), humanize.IBytes(s.SizeBytes), state, created)
	}
	return tw.Flush()
}

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every frame checksum, index entry and sealed segment size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := queue.Verify(a.cfg.QueueDir())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BASE\tFRAMES\tVALID\tFILE\tINDEX\tRESULT")
			failed := 0
			for _, s := range rep.Segments {
				result := "ok"
				if s.Err != nil {
					result = s.Err.Error()
					failed++
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n",
					s.BaseSequence, s.Frames, humanize.IBytes(uint64(s.ValidBytes)), humanize.IBytes(uint64(s.FileBytes)), s.IndexEntries, result)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !rep.OK() {
				return fmt.Errorf("verify: %d of %d segments failed", failed, len(rep.Segments))
			}
			fmt.Fprintf(w, "all %d segments verified\n", len(rep.Segments))
			return nil
		},
	}
}
