package cmd

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/image"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/spf13/cobra"
)

var (
	readAccess string
	readAddr   string
	readCount  int
)

var readCmd = &cobra.Command{
	Use:   "read [file]",
	Short: "Read flash into an image file, or dump memory",
	Long: `With a file argument, read every program flash segment and save it in the
format picked by --format or the file extension. With --count, dump that many
units of memory starting at --addr instead.

Examples:
  dscprog read -t MC56F8006 flash.s19
  dscprog read -t MC56F8006 --access xword --addr 0x100 --count 16`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&imageFormat, "format", "f", "auto", "image format (auto, srec, ihex, bin)")
	readCmd.Flags().StringVar(&readAccess, "access", "pword", "dump access (pbyte, pword, plong, xbyte, xword, xlong)")
	readCmd.Flags().StringVar(&readAddr, "addr", "0", "dump start address")
	readCmd.Flags().IntVarP(&readCount, "count", "n", 0, "number of units to dump")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && readCount <= 0 {
		return fmt.Errorf("give an output file or --count")
	}
	if len(args) == 1 {
		f, err := image.ParseFormat(imageFormat)
		if err != nil {
			return err
		}
		return withTarget(func(t *dsc.Target) error {
			blocks, err := t.ReadFlash()
			if err != nil {
				return err
			}
			if err := image.Save(args[0], f, blocks); err != nil {
				return err
			}
			fmt.Printf("Read %d bytes of flash into %s\n", imageSize(blocks), args[0])
			return nil
		})
	}

	access, err := memmap.ParseAccess(readAccess)
	if err != nil {
		return err
	}
	addr, err := parseNumber(readAddr)
	if err != nil {
		return err
	}
	return withTarget(func(t *dsc.Target) error {
		data, err := t.ReadMemory(access, addr, readCount*access.Size())
		if err != nil {
			return err
		}
		fmt.Print(hexDump(access, addr, data))
		return nil
	})
}

// hexDump prints 16 bytes per line. Word and long addresses advance by one
// per word, byte addresses by one per byte.
func hexDump(access memmap.Access, addr uint32, data []byte) string {
	space := "P"
	if access.Space() == memmap.SpaceData {
		space = "X"
	}
	size := access.Size()
	step := uint32(1)
	if size == 1 {
		step = 0
	}

	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		line := addr
		if step == 0 {
			line += uint32(off)
		} else {
			line += uint32(off / 2)
		}
		fmt.Fprintf(&b, "%s:0x%06X:", space, line)
		for i := off; i+size <= end; i += size {
			switch size {
			case 1:
				fmt.Fprintf(&b, " %02X", data[i])
			case 2:
				fmt.Fprintf(&b, " %04X", binary.LittleEndian.Uint16(data[i:]))
			default:
				fmt.Fprintf(&b, " %08X", binary.LittleEndian.Uint32(data[i:]))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
