package pe

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

type SectionHeader32 struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

type SectionHeader struct {
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	Size            uint32
	Offset          uint32
	Characteristics uint32
}

// cString converts ASCII byte sequence b to string.
// It stops once it finds 0 or reaches end of b.
func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		i = len(b)
	}
	return string(b[:i])
}

func (s *SectionHeader) Flags() (flags string) {
	if (ImageScnMemRead & s.Characteristics) == ImageScnMemRead {
		flags += "r"
	}
	if (ImageScnMemExecute & s.Characteristics) == ImageScnMemExecute {
		flags += "x"
	}
	if (ImageScnMemWrite & s.Characteristics) == ImageScnMemWrite {
		flags += "w"
	}
	return flags
}

// byVirtualAddress sorts all sections by Virtual Address.
type byVirtualAddress []SectionHeader

func (s byVirtualAddress) Len() int           { return len(s) }
func (s byVirtualAddress) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byVirtualAddress) Less(i, j int) bool { return s[i].VirtualAddress < s[j].VirtualAddress }

func (h *Headers) sectionTableOffset() uint64 {
	return h.optionalHeaderOffset + uint64(h.FileHeader.SizeOfOptionalHeader)
}

// Sections reads the section table that follows the optional header,
// sorted by virtual address.
func (h *Headers) Sections(image []byte) ([]SectionHeader, error) {
	count := uint64(h.FileHeader.NumberOfSections)
	data, ok := slice(image, h.sectionTableOffset(), count*sectionHeaderSize)
	if !ok {
		return nil, errors.Wrapf(ErrOutsideBoundary, "section table of %d entries", count)
	}

	raw := make([]SectionHeader32, count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, raw); err != nil {
		return nil, errors.WithMessage(err, "failure to read section table")
	}

	sections := make([]SectionHeader, 0, count)
	for _, sh := range raw {
		sections = append(sections, SectionHeader{
			Name:            cString(sh.Name[:]),
			VirtualSize:     sh.VirtualSize,
			VirtualAddress:  sh.VirtualAddress,
			Size:            sh.SizeOfRawData,
			Offset:          sh.PointerToRawData,
			Characteristics: sh.Characteristics,
		})
	}
	sort.Sort(byVirtualAddress(sections))
	return sections, nil
}
