package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/internal/trace"
)

var tracePath string

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Dump a §6 debug trace log",
	Long: `Trace reads the bit-exact §6 trace wire format (internal/trace)
and prints the schema header followed by every recorded event.`,
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVar(&tracePath, "trace", "", "path to the trace log (required)")
	traceCmd.MarkFlagRequired("trace")
}

func runTrace(cmd *cobra.Command, args []string) error {
	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", tracePath, err)
	}
	defer f.Close()

	r := trace.NewReader(f)
	buildDate, timestamp, descriptors, err := r.ReadHeader()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	fmt.Printf("build date: %s\n", buildDate)
	fmt.Printf("timestamp:  %d\n", timestamp)
	fmt.Printf("opcodes:\n")
	for _, d := range descriptors {
		fmt.Printf("  module=%d opcode=%d %s(%d params)\n", d.Module, d.Opcode, d.Name, len(d.Params))
	}

	fmt.Println("events:")
	count := 0
	for {
		ev, err := r.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read event %d: %w", count, err)
		}
		fmt.Printf("  [%d] t=%d %s:%d %s module=%d opcode=%d params=%d backtrace=%d\n",
			count, ev.Timestamp, ev.File, ev.Line, ev.Function, ev.Module, ev.Opcode, len(ev.Params), len(ev.Backtrace))
		count++
	}
	fmt.Printf("%d events\n", count)
	return nil
}
