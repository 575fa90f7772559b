package pe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

const testNtOffset = 0x40

// testImage is a minimal mapped PE image assembled in memory.
type testImage struct {
	t    *testing.T
	buf  []byte
	is64 bool

	optOffset int
	ddOffset  int
	nSections int
}

func newTestImage(t *testing.T, is64 bool, base uint64, size uint32) *testImage {
	t.Helper()

	var b bytes.Buffer
	dh := DOSHeader{Magic: ImageDOSSignature, AddressOfNewEXEHeader: testNtOffset}
	require.NoError(t, binary.Write(&b, binary.LittleEndian, &dh))
	require.Equal(t, testNtOffset, b.Len())
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(ImageNTHeaderSignature)))

	var oh any
	fh := FileHeader{Machine: 0x14c}
	if is64 {
		fh.Machine = 0x8664
		oh = &OptionalHeader64{
			Magic:               ImageNtOptionalHdr64Magic,
			ImageBase:           base,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         size,
			SizeOfHeaders:       0x400,
			NumberOfRvaAndSizes: ImageNumberOfDirectoryEntries,
		}
	} else {
		oh = &OptionalHeader32{
			Magic:               ImageNtOptionalHdr32Magic,
			ImageBase:           uint32(base),
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         size,
			SizeOfHeaders:       0x400,
			NumberOfRvaAndSizes: ImageNumberOfDirectoryEntries,
		}
	}
	ohSize := binary.Size(oh)
	fh.SizeOfOptionalHeader = uint16(ohSize)
	require.NoError(t, binary.Write(&b, binary.LittleEndian, &fh))

	optOffset := b.Len()
	require.NoError(t, binary.Write(&b, binary.LittleEndian, oh))

	buf := make([]byte, size)
	require.GreaterOrEqual(t, len(buf), b.Len())
	copy(buf, b.Bytes())

	return &testImage{
		t:         t,
		buf:       buf,
		is64:      is64,
		optOffset: optOffset,
		ddOffset:  optOffset + ohSize - ImageNumberOfDirectoryEntries*dataDirectorySize,
	}
}

func (ti *testImage) setDirectory(index int, rva, size uint32) {
	off := ti.ddOffset + index*dataDirectorySize
	binary.LittleEndian.PutUint32(ti.buf[off:], rva)
	binary.LittleEndian.PutUint32(ti.buf[off+4:], size)
}

func (ti *testImage) setRelocDir(rva, size uint32) {
	ti.setDirectory(ImageDirectoryEntryBaseReLoc, rva, size)
}

func (ti *testImage) setNumberOfRvaAndSizes(n uint32) {
	binary.LittleEndian.PutUint32(ti.buf[ti.ddOffset-4:], n)
}

func (ti *testImage) setImageSize(n uint32) {
	// SizeOfImage sits at the same offset in both optional header layouts.
	binary.LittleEndian.PutUint32(ti.buf[ti.optOffset+56:], n)
}

// putBlock writes a relocation block at rva and returns the rva following it.
func (ti *testImage) putBlock(rva, page uint32, entries ...uint16) uint32 {
	size := uint32(baseRelocationSize + relocEntrySize*len(entries))
	return ti.putBlockSized(rva, page, size, entries...)
}

// putBlockSized writes a block header declaring size regardless of how many
// entries are actually written.
func (ti *testImage) putBlockSized(rva, page, size uint32, entries ...uint16) uint32 {
	binary.LittleEndian.PutUint32(ti.buf[rva:], page)
	binary.LittleEndian.PutUint32(ti.buf[rva+4:], size)
	for i, e := range entries {
		binary.LittleEndian.PutUint16(ti.buf[rva+baseRelocationSize+uint32(i)*relocEntrySize:], e)
	}
	return rva + size
}

func (ti *testImage) addSection(name string, va, vsize, rawOffset, rawSize uint32) {
	sh := SectionHeader32{
		VirtualSize:      vsize,
		VirtualAddress:   va,
		SizeOfRawData:    rawSize,
		PointerToRawData: rawOffset,
		Characteristics:  ImageScnMemRead | ImageScnMemExecute,
	}
	copy(sh.Name[:], name)

	var b bytes.Buffer
	require.NoError(ti.t, binary.Write(&b, binary.LittleEndian, &sh))
	fhOff := testNtOffset + 4
	sizeOfOptionalHeader := int(binary.LittleEndian.Uint16(ti.buf[fhOff+16:]))
	off := ti.optOffset + sizeOfOptionalHeader + ti.nSections*sectionHeaderSize
	copy(ti.buf[off:], b.Bytes())

	ti.nSections++
	binary.LittleEndian.PutUint16(ti.buf[fhOff+2:], uint16(ti.nSections))
}

func (ti *testImage) put32(rva uint32, v uint32) { binary.LittleEndian.PutUint32(ti.buf[rva:], v) }
func (ti *testImage) put64(rva uint32, v uint64) { binary.LittleEndian.PutUint64(ti.buf[rva:], v) }
func (ti *testImage) get32(rva uint32) uint32    { return binary.LittleEndian.Uint32(ti.buf[rva:]) }
func (ti *testImage) get64(rva uint32) uint64    { return binary.LittleEndian.Uint64(ti.buf[rva:]) }

func relocEntry(typ uint8, offset uint16) uint16 {
	return uint16(typ)<<12 | offset&0x0fff
}

const (
	testBase32 = uint64(0x400000)
	testBase64 = uint64(0x140000000)
	testSize   = uint32(0x3000)
)

// newReloc32 builds a PE32 image based at testBase32 with one block of two
// HIGHLOW fields at 0x1010 and 0x1020.
func newReloc32(t *testing.T) *testImage {
	t.Helper()
	ti := newTestImage(t, false, testBase32, testSize)
	ti.put32(0x1010, uint32(testBase32+0x2000))
	ti.put32(0x1020, uint32(testBase32+0x1100))
	end := ti.putBlock(0x2000, 0x1000,
		relocEntry(RelBasedHighLow, 0x010),
		relocEntry(RelBasedHighLow, 0x020))
	ti.setRelocDir(0x2000, end-0x2000)
	return ti
}

// newReloc64 builds a PE32+ image based at testBase64 with DIR64 fields in two blocks.
func newReloc64(t *testing.T) *testImage {
	t.Helper()
	ti := newTestImage(t, true, testBase64, testSize)
	ti.put64(0x1008, testBase64+0x1500)
	ti.put64(0x2100, testBase64+0x10)
	next := ti.putBlock(0x2800, 0x1000, relocEntry(RelBasedDir64, 0x008))
	end := ti.putBlock(next, 0x2000, relocEntry(RelBasedDir64, 0x100), relocEntry(RelBasedAbsolute, 0))
	ti.setRelocDir(0x2800, end-0x2800)
	return ti
}
