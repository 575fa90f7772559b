package pe

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

type NtHeader struct {
	Signature      uint32
	FileHeader     FileHeader
	OptionalHeader any // of type *OptionalHeader32 or *OptionalHeader64
}

type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type OptionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [ImageNumberOfDirectoryEntries]DataDirectory
}

type OptionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [ImageNumberOfDirectoryEntries]DataDirectory
}

// Offsets of ImageBase inside the optional headers.
const (
	imageBaseOffset32 = 28
	imageBaseOffset64 = 24
)

// Headers is a view of the DOS and NT headers of an image held in memory.
// Offsets recorded here are relative to the start of that image buffer.
type Headers struct {
	DOSHeader
	NtHeader

	Is64 bool
	Is32 bool

	optionalHeaderOffset uint64
	dataDirectoryOffset  uint64
	numberOfDirectories  uint32
}

// ParseHeaders reads the headers of a PE image. The buffer may hold either the
// raw file layout or the mapped layout; headers are identical in both.
func ParseHeaders(image []byte) (*Headers, error) {
	if image == nil {
		return nil, ErrNilImage
	}

	h := new(Headers)
	dh, err := readDOSHeader(image)
	if err != nil {
		return nil, err
	}
	h.DOSHeader = dh

	if err := h.readNTHeader(image); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Headers) readNTHeader(image []byte) error {
	offset := uint64(h.DOSHeader.AddressOfNewEXEHeader)
	data, ok := slice(image, offset, 4+uint64(FileHeaderSize))
	if !ok {
		return errors.Wrap(ErrOutsideBoundary, "failure to read NT headers")
	}

	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &h.Signature); err != nil {
		return err
	}
	if h.Signature != ImageNTHeaderSignature {
		return errors.New("not a valid PE signature. Magic not found")
	}
	if err := binary.Read(r, binary.LittleEndian, &h.FileHeader); err != nil {
		return err
	}

	h.optionalHeaderOffset = offset + uint64(len(data))

	var err error
	h.OptionalHeader, err = h.readOptionalHeader(image)
	return err
}

func (h *Headers) readOptionalHeader(image []byte) (any, error) {
	var ohMagic uint16
	if h.FileHeader.SizeOfOptionalHeader < uint16(binary.Size(ohMagic)) {
		return nil, errors.New("optional header size is less than optional header magic size")
	}

	data, ok := slice(image, h.optionalHeaderOffset, uint64(binary.Size(ohMagic)))
	if !ok {
		return nil, errors.Wrap(ErrOutsideBoundary, "failure to read optional header magic")
	}
	ohMagic = binary.LittleEndian.Uint16(data)

	switch ohMagic {
	case ImageNtOptionalHdr32Magic:
		oh32 := new(OptionalHeader32)
		if err := h.unpackOptionalHeader(image, oh32, binary.Size(oh32.DataDirectory), "PE32"); err != nil {
			return nil, err
		}
		h.Is32 = true
		h.numberOfDirectories = minOf(h.numberOfDirectories, oh32.NumberOfRvaAndSizes)
		return oh32, nil
	case ImageNtOptionalHdr64Magic:
		oh64 := new(OptionalHeader64)
		if err := h.unpackOptionalHeader(image, oh64, binary.Size(oh64.DataDirectory), "PE32+"); err != nil {
			return nil, err
		}
		h.Is64 = true
		h.numberOfDirectories = minOf(h.numberOfDirectories, oh64.NumberOfRvaAndSizes)
		return oh64, nil
	default:
		return nil, errors.Errorf("optional header has unexpected Magic of 0x%x", ohMagic)
	}
}

// unpackOptionalHeader decodes oh from the bytes the file header declares.
// There can be 0 or more data directories, so only the fixed part is required;
// directories that are not present decode as zero.
func (h *Headers) unpackOptionalHeader(image []byte, oh any, ddSize int, kind string) error {
	fullSz := binary.Size(oh)
	minSz := fullSz - ddSize
	declared := int(h.FileHeader.SizeOfOptionalHeader)

	if declared < minSz {
		return errors.Errorf("optional header size(%d) is less minimum size (%d) for %s optional header",
			declared, minSz, kind)
	}

	avail := minOf(declared, fullSz)
	data, ok := slice(image, h.optionalHeaderOffset, uint64(avail))
	if !ok {
		return errors.Wrapf(ErrOutsideBoundary, "failure to read %s optional header", kind)
	}

	padded := make([]byte, fullSz)
	copy(padded, data)
	if err := binary.Read(bytes.NewReader(padded), binary.LittleEndian, oh); err != nil {
		return errors.Wrapf(err, "failure to read %s optional header", kind)
	}

	h.dataDirectoryOffset = h.optionalHeaderOffset + uint64(minSz)
	h.numberOfDirectories = uint32((avail - minSz) / dataDirectorySize)
	return nil
}

func (h *Headers) ImageBase() uint64 {
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		return oh.ImageBase
	case *OptionalHeader32:
		return uint64(oh.ImageBase)
	}
	return 0
}

func (h *Headers) ImageSize() uint32 {
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		return oh.SizeOfImage
	case *OptionalHeader32:
		return oh.SizeOfImage
	}
	return 0
}

func (h *Headers) SizeOfHeaders() uint32 {
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		return oh.SizeOfHeaders
	case *OptionalHeader32:
		return oh.SizeOfHeaders
	}
	return 0
}

func (h *Headers) SectionAlignment() uint32 {
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		return oh.SectionAlignment
	case *OptionalHeader32:
		return oh.SectionAlignment
	}
	return 0
}

func (h *Headers) FileAlignment() uint32 {
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		return oh.FileAlignment
	case *OptionalHeader32:
		return oh.FileAlignment
	}
	return 0
}

// DirectoryEntry returns the data directory at index. It reports false when the
// directory is not present in the header or has no address.
func (h *Headers) DirectoryEntry(index int) (DataDirectory, bool) {
	if index < 0 || index >= int(h.numberOfDirectories) {
		return DataDirectory{}, false
	}

	var dd DataDirectory
	switch oh := h.OptionalHeader.(type) {
	case *OptionalHeader64:
		dd = oh.DataDirectory[index]
	case *OptionalHeader32:
		dd = oh.DataDirectory[index]
	default:
		return DataDirectory{}, false
	}

	if dd.VirtualAddress == 0 {
		return DataDirectory{}, false
	}
	return dd, true
}

// DirectoryEntryOffset returns where the descriptor of directory index lives
// inside the image buffer.
func (h *Headers) DirectoryEntryOffset(index int) uint64 {
	return h.dataDirectoryOffset + uint64(index)*dataDirectorySize
}

// Is64Bit reports whether image carries a PE32+ optional header.
func Is64Bit(image []byte) bool {
	h, err := ParseHeaders(image)
	if err != nil {
		return false
	}
	return h.Is64
}

// ImageBase returns the preferred base declared by the image.
func ImageBase(image []byte) (uint64, error) {
	h, err := ParseHeaders(image)
	if err != nil {
		return 0, err
	}
	return h.ImageBase(), nil
}

// ImageSize returns SizeOfImage.
func ImageSize(image []byte) (uint32, error) {
	h, err := ParseHeaders(image)
	if err != nil {
		return 0, err
	}
	return h.ImageSize(), nil
}

// SetImageBase rewrites the ImageBase field of the optional header in place.
func SetImageBase(image []byte, base uint64) error {
	h, err := ParseHeaders(image)
	if err != nil {
		return err
	}

	if h.Is64 {
		field, ok := slice(image, h.optionalHeaderOffset+imageBaseOffset64, 8)
		if !ok {
			return ErrOutsideBoundary
		}
		binary.LittleEndian.PutUint64(field, base)
		return nil
	}

	if base > math.MaxUint32 {
		return errors.Wrapf(ErrBaseOutOfRange, "image base 0x%x in a PE32 header", base)
	}
	field, ok := slice(image, h.optionalHeaderOffset+imageBaseOffset32, 4)
	if !ok {
		return ErrOutsideBoundary
	}
	binary.LittleEndian.PutUint32(field, uint32(base))
	return nil
}
