package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List attached BDM/JTAG probes",
	Long: `Scan the USB bus for USBDM-compatible probes and print what was found. The
serial number shown can be passed to other commands with --serial.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := bdm.DiscoverProbes(ctx)
	if err != nil {
		return fmt.Errorf("discover probes: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No probes found.")
		return nil
	}

	fmt.Println("Detected probes:")
	for _, p := range infos {
		fmt.Printf("  - %s (bus %d, address %d)\n", p.Label(), p.Bus, p.Address)
	}
	return nil
}
