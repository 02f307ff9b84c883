package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/internal/walpersist"
)

var walPath string

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Show the dirty-block set recovered from a WAL log",
	Long: `Wal opens a dirty-block WAL (internal/walpersist) and replays
it, printing every block left dirty. This is diagnostic only — the
patch content that made a block dirty is never recorded here, only the
fact that the block owed a flush at the time the log last synced.`,
	RunE: runWal,
}

func init() {
	walCmd.Flags().StringVar(&walPath, "wal", "", "path to the WAL log (required)")
	walCmd.MarkFlagRequired("wal")
}

func runWal(cmd *cobra.Command, args []string) error {
	p, err := walpersist.NewFilePersister(walPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", walPath, err)
	}
	defer p.Close()

	dirty, err := p.Recover()
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	blocks := make([]uint64, 0, len(dirty))
	for b := range dirty {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	fmt.Printf("%d dirty block(s):\n", len(blocks))
	for _, b := range blocks {
		fmt.Printf("  %d\n", b)
	}
	return nil
}
