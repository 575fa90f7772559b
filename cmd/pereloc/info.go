package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	pe "github.com/wanglei-coder/pereloc"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

type Info struct {
	File        string
	Is64        bool
	ImageBase   string
	ImageSize   uint32
	Sections    []*Section
	Relocations *Relocations
}

type Section struct {
	Name           string
	Flags          string
	RawSize        uint32
	VirtualAddress uint32
	VirtualSize    uint32
}

type Relocations struct {
	Present bool
	Valid   bool
	Error   string `json:",omitempty"`
	Blocks  int
	Fields  int
	Types   map[string]int
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the headers and relocation table summary of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.OutOrStdout(), args[0])
		},
	}
}

func getSections(h *pe.Headers, image []byte) []*Section {
	headers, err := h.Sections(image)
	if err != nil {
		return nil
	}
	sections := make([]*Section, 0, len(headers))
	for _, s := range headers {
		sections = append(sections, &Section{
			Name:           s.Name,
			Flags:          s.Flags(),
			RawSize:        s.Size,
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
		})
	}
	return sections
}

func getRelocations(r *pe.Relocator, image []byte) *Relocations {
	relocs := &Relocations{Types: make(map[string]int)}
	table, err := r.Relocations(image)
	if errors.Is(err, pe.ErrNoRelocations) {
		return relocs
	}
	relocs.Present = true
	if err != nil {
		relocs.Error = err.Error()
		return relocs
	}
	relocs.Valid = true
	relocs.Blocks = len(table.Blocks)
	relocs.Fields = table.FieldCount()
	for typ, n := range table.Types {
		relocs.Types[pe.RelocTypeName(typ)] = n
	}
	return relocs
}

func runInfo(w io.Writer, path string) error {
	image, _, err := loadImage(path)
	if err != nil {
		return err
	}
	h, err := pe.ParseHeaders(image)
	if err != nil {
		return err
	}

	info := Info{
		File:        path,
		Is64:        h.Is64,
		ImageBase:   fmt.Sprintf("0x%x", h.ImageBase()),
		ImageSize:   h.ImageSize(),
		Sections:    getSections(h, image),
		Relocations: getRelocations(pe.NewRelocator(newLogger()), image),
	}

	if jsonOut {
		return printJSON(w, &info)
	}

	bits := 32
	if info.Is64 {
		bits = 64
	}
	fmt.Fprintf(w, "File:        %s\n", info.File)
	fmt.Fprintf(w, "Bitness:     %d\n", bits)
	fmt.Fprintf(w, "Image base:  %s\n", info.ImageBase)
	fmt.Fprintf(w, "Image size:  0x%x\n", info.ImageSize)
	fmt.Fprintf(w, "Sections:    %d\n", len(info.Sections))
	for _, s := range info.Sections {
		fmt.Fprintf(w, "  %-8s va=0x%08x vsize=0x%08x raw=0x%08x %s\n",
			s.Name, s.VirtualAddress, s.VirtualSize, s.RawSize, s.Flags)
	}

	if !info.Relocations.Present {
		fmt.Fprintf(w, "Relocations: none\n")
		return nil
	}
	if !info.Relocations.Valid {
		fmt.Fprintf(w, "Relocations: invalid (%s)\n", info.Relocations.Error)
		return nil
	}
	fmt.Fprintf(w, "Relocations: %d blocks, %d fields\n", info.Relocations.Blocks, info.Relocations.Fields)
	names := make([]string, 0, len(info.Relocations.Types))
	for name := range info.Relocations.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %d\n", name, info.Relocations.Types[name])
	}
	return nil
}
