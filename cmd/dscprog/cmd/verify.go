package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Compare flash with an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&imageFormat, "format", "f", "auto", "image format (auto, srec, ihex, bin)")
	verifyCmd.Flags().StringVar(&imageBase, "base", "0", "load address for binary images")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	blocks, err := loadImage(args[0])
	if err != nil {
		return err
	}
	return withTarget(func(t *dsc.Target) error {
		if err := t.Verify(blocks); err != nil {
			return err
		}
		fmt.Printf("Verify OK (%d bytes)\n", imageSize(blocks))
		return nil
	})
}
