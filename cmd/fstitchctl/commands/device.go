package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/internal/bytesize"
)

var (
	devicePath     string
	blockSizeFlag  string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Report a device file's size in blocks",
	RunE:  runDevice,
}

func init() {
	deviceCmd.Flags().StringVar(&devicePath, "device", "", "path to the device file (required)")
	deviceCmd.Flags().StringVar(&blockSizeFlag, "block-size", "4Ki", "block size (e.g. 4Ki)")
	deviceCmd.MarkFlagRequired("device")
}

func runDevice(cmd *cobra.Command, args []string) error {
	blockSize, err := bytesize.ParseByteSize(blockSizeFlag)
	if err != nil {
		return fmt.Errorf("parse --block-size: %w", err)
	}

	info, err := os.Stat(devicePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", devicePath, err)
	}
	fmt.Printf("device:     %s\n", devicePath)
	fmt.Printf("file size:  %d bytes\n", info.Size())
	fmt.Printf("block size: %s\n", blockSize)
	fmt.Printf("num blocks: %d\n", info.Size()/int64(blockSize))
	return nil
}
