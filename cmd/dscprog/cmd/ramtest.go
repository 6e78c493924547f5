package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/spf13/cobra"
)

var ramTestCmd = &cobra.Command{
	Use:   "ramtest",
	Short: "Write and read back a pattern in data RAM",
	RunE:  runRAMTest,
}

func init() {
	rootCmd.AddCommand(ramTestCmd)
}

func runRAMTest(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *dsc.Target) error {
		if err := t.RAMTest(); err != nil {
			return err
		}
		fmt.Println("RAM test passed")
		return nil
	})
}
