package cmd

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/spf13/cobra"
)

var errNotBlank = errors.New("flash is not blank")

var blankCheckCmd = &cobra.Command{
	Use:   "blank-check",
	Short: "Check that program flash is erased",
	RunE:  runBlankCheck,
}

func init() {
	rootCmd.AddCommand(blankCheckCmd)
}

func runBlankCheck(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *dsc.Target) error {
		blank, err := t.BlankCheck()
		if err != nil {
			return err
		}
		if !blank {
			return errNotBlank
		}
		fmt.Println("Flash is blank")
		return nil
	})
}
