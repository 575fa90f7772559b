package pe

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

type DOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

func readDOSHeader(image []byte) (DOSHeader, error) {
	var dh DOSHeader

	data, ok := slice(image, 0, uint64(DOSHeaderSize))
	if !ok {
		return dh, ErrInvalidPESize
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &dh); err != nil {
		return dh, errors.WithMessage(err, "failure to read DOS header")
	}

	if dh.Magic != ImageDOSSignature && dh.Magic != ImageDOSZMSignature {
		return dh, errors.New("invalid PE file signature")
	}

	if dh.AddressOfNewEXEHeader < 4 || uint64(dh.AddressOfNewEXEHeader) > uint64(len(image)) {
		return dh, errors.New("invalid e_lfanew value. Probably not a PE file")
	}
	return dh, nil
}
