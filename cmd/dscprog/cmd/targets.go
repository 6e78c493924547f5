package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/spf13/cobra"
)

var showMemoryMap bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List supported target devices",
	Long: `Print the devices in the target database, either the built-in list or the
YAML file given with --targets.`,
	RunE: runTargets,
}

func init() {
	targetsCmd.Flags().BoolVarP(&showMemoryMap, "memory", "m", false, "show each target's memory map")
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	db, err := loadDatabase()
	if err != nil {
		return err
	}
	names := db.Names()
	fmt.Printf("%d target(s):\n", len(names))
	for _, name := range names {
		t, err := db.Lookup(name)
		if err != nil {
			return err
		}
		mm, err := t.MemoryMap()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		flash := 0
		for _, seg := range mm.OfKind(memmap.FlashProgram) {
			flash += seg.Bytes()
		}
		id := idcode.ParseIDCode(t.JTAGID)
		fmt.Printf("  %-12s %-10s JTAG 0x%08X (part 0x%04X)  flash %d KB\n",
			t.Name, t.Family, t.JTAGID, id.PartNumber, flash/1024)
		if showMemoryMap {
			for _, seg := range mm {
				fmt.Printf("      %-7s %s\n", seg.Kind, seg)
			}
		}
	}
	return nil
}
