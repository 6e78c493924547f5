package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose       bool
	adapterType   string
	adapterSerial string
	targetName    string
	targetsFile   string
	powerLevel    string
	routineFile   string

	// Simulator only
	simSecured bool
)

var rootCmd = &cobra.Command{
	Use:   "dscprog",
	Short: "Flash programmer for 56800E digital signal controllers",
	Long: `Program, erase and verify the flash of Freescale/NXP 56800E DSCs through a
USBDM BDM/JTAG probe. Every command connects to the target named with --target,
power-cycling it from the probe when --power is set.

Examples:
  dscprog interfaces                                   # List attached probes
  dscprog connect -t MC56F8006                         # Identify the target
  dscprog program -t MC56F8006 --erase firmware.s19    # Erase, program, verify
  dscprog read -t MC56F8006 dump.hex                   # Save flash contents
  dscprog connect -t MC56F8006 --adapter simulator     # Run against the simulator

The flash routines built into dscprog drive the simulator only. Programming real
silicon needs a routine built for the device, named with --routine or with
flash_routine in the target database.`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&adapterType, "adapter", "a", "usbdm", "probe type (usbdm, simulator)")
	pf.StringVarP(&adapterSerial, "serial", "s", "", "probe serial number (first probe if empty)")
	pf.StringVarP(&targetName, "target", "t", "", "target device name, see 'dscprog targets'")
	pf.StringVar(&targetsFile, "targets", "", "target database YAML (built-in list if empty)")
	pf.StringVarP(&powerLevel, "power", "p", "3.3", "target supply from the probe (off, 3.3, 5)")
	pf.StringVar(&routineFile, "routine", "", "flash routine S19 for the device (overrides the target database)")
	pf.BoolVar(&simSecured, "sim-secured", false, "simulator: report a secured core")
}
