package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	pe "github.com/wanglei-coder/pereloc"
)

var (
	relocateBase    string
	relocateOldBase string
	relocateOut     string
	updateHeader    bool
)

func init() {
	cmd := newRelocateCmd()
	cmd.Flags().StringVar(&relocateBase, "base", "", "New base address (required)")
	cmd.Flags().StringVar(&relocateOldBase, "old-base", "", "Base the image is currently relocated to (default: preferred base)")
	cmd.Flags().StringVarP(&relocateOut, "out", "o", "", "Output file (required)")
	cmd.Flags().BoolVar(&updateHeader, "update-header", false, "Also write the new base into the optional header")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("out")
	rootCmd.AddCommand(cmd)
}

func newRelocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relocate <file> --base <address> --out <file>",
		Short: "Rebase an image to a new address",
		Long: `The relocate command applies the base relocation table of the image so
that it can run at a new base address, then writes the result.

Example:
  pereloc relocate app.exe --base 0x10000000 --out app.rebased.exe --update-header
  pereloc relocate dump.bin --mapped --old-base 0x7ff700000000 --base 0x140000000 -o fixed.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelocate(cmd.OutOrStdout(), args[0])
		},
	}
}

func runRelocate(w io.Writer, path string) error {
	newBase, err := parseBase(relocateBase)
	if err != nil {
		return err
	}
	var oldBase uint64
	if relocateOldBase != "" {
		if oldBase, err = parseBase(relocateOldBase); err != nil {
			return err
		}
	}

	image, overlay, err := loadImage(path)
	if err != nil {
		return err
	}

	r := pe.NewRelocator(newLogger())
	if err := r.Relocate(image, newBase, oldBase); err != nil {
		return err
	}
	if updateHeader {
		if err := pe.SetImageBase(image, newBase); err != nil {
			return err
		}
	}
	if err := storeImage(relocateOut, image, overlay); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(w, map[string]interface{}{
			"file": path,
			"out":  relocateOut,
			"base": fmt.Sprintf("0x%x", newBase),
		})
	}
	fmt.Fprintf(w, "%s relocated to 0x%x, written to %s\n", path, newBase, relocateOut)
	return nil
}
