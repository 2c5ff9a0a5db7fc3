package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notnil/vcucan/canbus"
)

var (
	rxFmt   = color.New(color.FgGreen).SprintFunc()
	txFmt   = color.New(color.FgCyan).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
	boldFmt = color.New(color.Bold).SprintFunc()
)

func newTraceCmd() *cobra.Command {
	trace := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded CBOR traces",
	}

	var ids []string
	dump := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print a trace, one frame per line",
		Long: `Print every record of a trace written with bus.record.

Examples:
  vcusim trace dump traffic.cbor
  vcusim trace dump traffic.cbor --id 0x0AA --id 0x120`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseIDFilter(ids)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return dumpTrace(cmd.OutOrStdout(), f, filter)
		},
	}
	dump.Flags().StringSliceVar(&ids, "id", nil, "Only show these identifiers (decimal or 0x hex)")
	trace.AddCommand(dump)
	return trace
}

func parseIDFilter(ids []string) (canbus.FrameFilter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parsed := make([]uint32, 0, len(ids))
	for _, s := range ids {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil || v > canbus.MaxExtID {
			return nil, fmt.Errorf("invalid --id %q", s)
		}
		parsed = append(parsed, uint32(v))
	}
	return canbus.ByIDs(parsed...), nil
}

// dumpTrace prints records from r matching filter, followed by a summary.
// Times are shown relative to the first record.
func dumpTrace(w io.Writer, r io.Reader, filter canbus.FrameFilter) error {
	tr := canbus.NewTraceReader(r)
	var (
		start    time.Time
		rx, tx   int
		skipped  int
		haveHead bool
	)
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
		if !haveHead {
			start, haveHead = rec.Time, true
		}
		f := rec.Frame()
		if !filter.Match(f) {
			skipped++
			continue
		}
		dir := rxFmt(rec.Dir.String())
		if rec.Dir == canbus.DirTx {
			dir = txFmt(rec.Dir.String())
			tx++
		} else {
			rx++
		}
		offset := rec.Time.Sub(start).Seconds()
		if _, err := fmt.Fprintf(w, "%s %s %s\n", dimFmt(fmt.Sprintf("(%010.6f)", offset)), dir, f); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s rx=%d tx=%d filtered=%d\n", boldFmt("records:"), rx, tx, skipped)
	return err
}
