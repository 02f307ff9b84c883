package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/pkg/blockdev"
)

var (
	benchDevicePath string
	benchBlocks     uint64
	benchRounds     int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive the patch/flush layer directly and report throughput",
	Long: `Bench writes benchRounds full-block patches across benchBlocks
blocks of a fresh stack (in-memory unless --device is given), flushing
the whole device at the end, and reports elapsed time and blocks/sec.
It bypasses the daemon's maintenance loop entirely — this is a
micro-benchmark of CreateFull + Flush, not of fstitchd itself.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchDevicePath, "device", "", "path to a file-backed device (default: in-memory)")
	benchCmd.Flags().Uint64Var(&benchBlocks, "blocks", 256, "number of blocks to cycle through")
	benchCmd.Flags().IntVar(&benchRounds, "rounds", 4, "number of full passes over the block range")
}

func runBench(cmd *cobra.Command, args []string) error {
	s, err := buildStack(benchDevicePath, benchBlocks, "")
	if err != nil {
		return err
	}
	defer s.close()

	ctx := context.Background()
	runID := uuid.NewString()
	payload := []byte(runID[:8])
	for len(payload) < s.lower.BlockSize() {
		payload = append(payload, payload...)
	}
	payload = payload[:s.lower.BlockSize()]

	start := time.Now()
	written := 0
	for round := 0; round < benchRounds; round++ {
		for n := uint64(0); n < benchBlocks; n++ {
			block, err := s.cache.SyntheticReadBlock(ctx, n)
			if err != nil {
				return fmt.Errorf("bench: read block %d: %w", n, err)
			}
			if _, err := s.eng.CreateFull(block, s.cache, payload); err != nil {
				return fmt.Errorf("bench: create patch for block %d: %w", n, err)
			}
			if err := s.cache.WriteBlock(ctx, block, n); err != nil {
				return fmt.Errorf("bench: write block %d: %w", n, err)
			}
			written++
		}
	}
	if _, err := s.cache.Flush(ctx, blockdev.FlushDevice); err != nil {
		return fmt.Errorf("bench: flush: %w", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("run:          %s\n", runID)
	fmt.Printf("blocks:       %d\n", benchBlocks)
	fmt.Printf("rounds:       %d\n", benchRounds)
	fmt.Printf("writes:       %d\n", written)
	fmt.Printf("elapsed:      %s\n", elapsed)
	fmt.Printf("throughput:   %.0f blocks/sec\n", float64(written)/elapsed.Seconds())
	return nil
}
