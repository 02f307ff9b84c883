package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/pkg/config"
)

var statusDevicePath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report a device file's block layout",
	Long: `Status stats a file-backed device (via --device) and reports
its size in blocks, using the configured block size. It never opens
the file for writing, so it is safe to run against a device "start" is
using.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDevicePath, "device", "", "path to the device file (required)")
	statusCmd.MarkFlagRequired("device")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	info, err := os.Stat(statusDevicePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", statusDevicePath, err)
	}

	blockSize := int64(cfg.Cache.BlockSize)
	if blockSize <= 0 {
		blockSize = 4096
	}

	fmt.Printf("device:     %s\n", statusDevicePath)
	fmt.Printf("file size:  %d bytes\n", info.Size())
	fmt.Printf("block size: %d bytes\n", blockSize)
	fmt.Printf("num blocks: %d\n", info.Size()/blockSize)
	return nil
}
