package pe

import (
	"encoding/binary"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// BaseRelocation is the header of a relocation block (IMAGE_BASE_RELOCATION).
// SizeOfBlock includes the header itself.
type BaseRelocation struct {
	VirtualAddress uint32
	SizeOfBlock    uint32
}

// EntryCount is the number of 16-bit entries that follow the header.
func (b BaseRelocation) EntryCount() uint32 {
	if b.SizeOfBlock < baseRelocationSize {
		return 0
	}
	return (b.SizeOfBlock - baseRelocationSize) / relocEntrySize
}

// RelocEntry is one packed relocation entry: 12-bit page offset, 4-bit type.
type RelocEntry uint16

func (e RelocEntry) Offset() uint32 { return uint32(e & 0x0fff) }
func (e RelocEntry) Type() uint8    { return uint8(e >> 12) }

// RelocTypeName returns the IMAGE_REL_BASED name of typ.
func RelocTypeName(typ uint8) string {
	switch typ {
	case RelBasedAbsolute:
		return "ABSOLUTE"
	case RelBasedHigh:
		return "HIGH"
	case RelBasedLow:
		return "LOW"
	case RelBasedHighLow:
		return "HIGHLOW"
	case RelBasedHighAdj:
		return "HIGHADJ"
	case RelBasedDir64:
		return "DIR64"
	}
	return "UNKNOWN(" + hexValue(typ) + ")"
}

// relocWalk is a single pass over the relocation table of one image.
type relocWalk struct {
	image  []byte
	is64   bool
	proc   fieldProcessor
	logger hclog.Logger
}

// fieldFormat is the only entry type accepted for the image's bitness and the
// width of the fields it patches.
func (w *relocWalk) fieldFormat() (uint8, uint64) {
	if w.is64 {
		return RelBasedDir64, 8
	}
	return RelBasedHighLow, 4
}

func (w *relocWalk) walkTable() error {
	h, err := ParseHeaders(w.image)
	if err != nil {
		return errors.WithMessage(err, "failure to read image headers")
	}

	dir, ok := h.DirectoryEntry(ImageDirectoryEntryBaseReLoc)
	if !ok {
		w.logger.Debug("no relocation table found")
		return ErrNoRelocations
	}
	if !ValidatePtr(len(w.image), h.DirectoryEntryOffset(ImageDirectoryEntryBaseReLoc), dataDirectorySize) {
		return errors.Wrap(ErrOutsideBoundary, "relocation directory descriptor")
	}
	w.is64 = h.Is64

	// 64-bit accumulator: every block that does not terminate the table
	// advances it by at least baseRelocationSize.
	maxSize := uint64(dir.Size)
	parsedSize := uint64(0)
	for parsedSize < maxSize {
		blockOffset := uint64(dir.VirtualAddress) + parsedSize
		data, ok := slice(w.image, blockOffset, baseRelocationSize)
		if !ok {
			w.logger.Warn("invalid address of relocations", "offset", hexValue(blockOffset))
			return errors.Wrapf(ErrInvalidRelocAddress, "block header at 0x%x", blockOffset)
		}

		block := BaseRelocation{
			VirtualAddress: binary.LittleEndian.Uint32(data),
			SizeOfBlock:    binary.LittleEndian.Uint32(data[4:]),
		}
		parsedSize += uint64(block.SizeOfBlock)

		if block.SizeOfBlock == 0 {
			break
		}
		if block.SizeOfBlock < baseRelocationSize {
			w.logger.Warn("relocation block smaller than its header",
				"offset", hexValue(blockOffset), "size", block.SizeOfBlock)
			return errors.Wrapf(ErrMalformedBlock, "block at 0x%x declares %d bytes", blockOffset, block.SizeOfBlock)
		}

		entriesOffset := blockOffset + baseRelocationSize
		if !ValidatePtr(len(w.image), entriesOffset, relocEntrySize) {
			w.logger.Warn("invalid address of relocations block", "offset", hexValue(entriesOffset))
			return errors.Wrapf(ErrInvalidRelocBlock, "entries at 0x%x", entriesOffset)
		}

		w.proc.beginBlock(block)
		if err := w.walkBlock(entriesOffset, block.EntryCount(), block.VirtualAddress); err != nil {
			return err
		}
	}

	if parsedSize == 0 {
		return ErrEmptyRelocTable
	}
	return nil
}

func (w *relocWalk) walkBlock(entriesOffset uint64, count uint32, page uint32) error {
	wantType, width := w.fieldFormat()

	for i := uint32(0); i < count; i++ {
		data, ok := slice(w.image, entriesOffset+uint64(i)*relocEntrySize, relocEntrySize)
		if !ok {
			// Trailing entries cut by the end of the buffer are tolerated.
			w.logger.Trace("relocation entries end outside the image", "page", hexValue(page), "index", i)
			break
		}

		entry := RelocEntry(binary.LittleEndian.Uint16(data))
		typ := entry.Type()
		if typ == RelBasedAbsolute {
			break
		}
		if typ != wantType {
			w.logger.Debug("not supported relocations format", "page", hexValue(page), "index", i, "type", typ)
			return errors.Wrapf(ErrUnsupportedRelocType, "entry %d of page 0x%x has type %d", i, page, typ)
		}

		fieldRVA := uint64(page) + uint64(entry.Offset())
		if fieldRVA >= uint64(len(w.image)) {
			w.logger.Debug("malformed field", "rva", hexValue(fieldRVA))
			return errors.Wrapf(ErrMalformedField, "field at 0x%x is outside the image", fieldRVA)
		}
		field, ok := slice(w.image, fieldRVA, width)
		if !ok {
			w.logger.Debug("malformed field", "rva", hexValue(fieldRVA), "width", width)
			return errors.Wrapf(ErrMalformedField, "field at 0x%x is cut by the end of the image", fieldRVA)
		}

		if err := w.proc.process(field, fieldRVA, typ); err != nil {
			w.logger.Trace("failed processing reloc field", "rva", hexValue(fieldRVA), "error", err)
			return err
		}
	}
	return nil
}
