package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/spf13/cobra"
)

var (
	eraseFirst bool
	skipVerify bool
)

var programCmd = &cobra.Command{
	Use:   "program <file>",
	Short: "Program an image into flash",
	Long: `Load an S-record, Intel HEX or binary image and write it into program flash.
Addresses are program-space word addresses; Intel HEX byte addresses are halved.
The flash under the image must be blank, so pass --erase unless it already is.
The result is read back and compared unless --no-verify is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgram,
}

func init() {
	programCmd.Flags().StringVarP(&imageFormat, "format", "f", "auto", "image format (auto, srec, ihex, bin)")
	programCmd.Flags().StringVar(&imageBase, "base", "0", "load address for binary images")
	programCmd.Flags().BoolVarP(&eraseFirst, "erase", "e", false, "mass erase before programming")
	programCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "skip the read-back verify")
	rootCmd.AddCommand(programCmd)
}

func runProgram(cmd *cobra.Command, args []string) error {
	blocks, err := loadImage(args[0])
	if err != nil {
		return err
	}
	return withTarget(func(t *dsc.Target) error {
		if eraseFirst {
			if err := t.MassErase(); err != nil {
				return err
			}
			fmt.Println("Mass erase complete")
		}
		if err := t.Program(blocks); err != nil {
			return err
		}
		fmt.Printf("Programmed %d bytes in %d block(s)\n", imageSize(blocks), len(blocks))
		if skipVerify {
			return nil
		}
		if err := t.Verify(blocks); err != nil {
			return err
		}
		fmt.Println("Verify OK")
		return nil
	})
}
