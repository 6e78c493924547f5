package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/spf13/cobra"
)

var (
	eraseAddr  string
	eraseWords string
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase program flash",
	Long: `Mass erase all program flash, or with --words erase the sectors covering a
word range. Mass erase restores the unsecured security word on families that
keep it in flash.`,
	RunE: runErase,
}

func init() {
	eraseCmd.Flags().StringVar(&eraseAddr, "addr", "0", "first word of the range")
	eraseCmd.Flags().StringVar(&eraseWords, "words", "0", "number of words to erase (0 for mass erase)")
	rootCmd.AddCommand(eraseCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	addr, err := parseNumber(eraseAddr)
	if err != nil {
		return err
	}
	words, err := parseNumber(eraseWords)
	if err != nil {
		return err
	}
	return withTarget(func(t *dsc.Target) error {
		if words == 0 {
			if err := t.MassErase(); err != nil {
				return err
			}
			fmt.Println("Mass erase complete")
			return nil
		}
		if err := t.Erase(addr, words); err != nil {
			return err
		}
		fmt.Printf("Erased P:0x%06X-0x%06X\n", addr, addr+words-1)
		return nil
	})
}
