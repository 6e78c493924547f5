package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode/deviceinfo"
	"github.com/spf13/cobra"
)

var measureSpeed bool

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the target and report its identity",
	Long: `Power-cycle the target, read the master and core JTAG IDs, classify the
security state and halt the core in debug mode.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().BoolVar(&measureSpeed, "speed", false, "measure the bus clock with the flash routine")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *dsc.Target) error {
		master, core := t.IDs()
		info := deviceinfo.Lookup(master)

		fmt.Printf("Target:    %s (%s)\n", t.Name, t.Family())
		fmt.Printf("JTAG ID:   %s\n", idcode.ParseIDCode(master))
		if info.Known {
			fmt.Printf("Device:    %s, %s\n", info.Name, info.Description)
		} else {
			fmt.Printf("Device:    %s\n", info.Name)
		}
		fmt.Printf("Core ID:   0x%08X\n", core)
		image := t.ConnectionImage()
		if image == "" {
			image = "(none)"
		}
		fmt.Printf("Connection image: %s\n", image)
		source := "file"
		if t.Routine().SimulatorOnly {
			source = "bundled, simulator only"
		}
		fmt.Printf("Routine:   %s (%s)\n", t.Routine().Family, source)
		fmt.Printf("Security:  %s\n", t.Security())
		fmt.Printf("Power:     %s\n", t.PowerStatus())
		fmt.Printf("State:     %s\n", t.State())

		if t.Security() == dsc.Secured {
			fmt.Println("Flash is secured; the core cannot be halted.")
			return nil
		}
		fmt.Printf("ONCE:      %s\n", t.ONCEStatus())

		if measureSpeed {
			khz, err := t.MeasureSpeed()
			if err != nil {
				return err
			}
			fmt.Printf("Bus clock: %d kHz\n", khz)
		}
		return nil
	})
}
