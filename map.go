package pe

import (
	"github.com/pkg/errors"
)

// maxImageSize caps allocations driven by header fields.
const maxImageSize = 512 << 20

// MapImage lays a raw PE file out the way the loader would: headers at
// offset zero and every section at its virtual address, in a buffer of
// SizeOfImage bytes.
func MapImage(raw []byte) ([]byte, error) {
	h, err := ParseHeaders(raw)
	if err != nil {
		return nil, err
	}

	size := uint64(h.ImageSize())
	if size == 0 || size > maxImageSize {
		return nil, errors.Errorf("unsupported SizeOfImage 0x%x", size)
	}

	sections, err := h.Sections(raw)
	if err != nil {
		return nil, err
	}

	image := make([]byte, size)
	hdrSize := minOf(uint64(h.SizeOfHeaders()), minOf(uint64(len(raw)), size))
	copy(image, raw[:hdrSize])

	sectionAlignment := uint64(h.SectionAlignment())
	for _, s := range sections {
		if s.Offset == 0 || s.Size == 0 {
			continue
		}
		va := uint64(s.VirtualAddress)
		if va >= size {
			return nil, errors.Errorf("section %q starts at 0x%x, outside the image of 0x%x bytes", s.Name, va, size)
		}

		start := uint64(s.Offset)
		end := minOf(start+uint64(s.Size), uint64(len(raw)))
		if start >= end {
			continue
		}
		n := minOf(end-start, size-va)
		if s.VirtualSize != 0 {
			n = minOf(n, alignUp(uint64(s.VirtualSize), sectionAlignment))
		}
		copy(image[va:va+n], raw[start:start+n])
	}
	return image, nil
}

// UnmapImage converts a mapped image back to the raw file layout described
// by its section table.
func UnmapImage(image []byte) ([]byte, error) {
	h, err := ParseHeaders(image)
	if err != nil {
		return nil, err
	}

	sections, err := h.Sections(image)
	if err != nil {
		return nil, err
	}

	hdrSize := minOf(uint64(h.SizeOfHeaders()), uint64(len(image)))
	rawSize := alignUp(hdrSize, uint64(h.FileAlignment()))
	for _, s := range sections {
		if s.Offset == 0 || s.Size == 0 {
			continue
		}
		rawSize = maxOf(rawSize, uint64(s.Offset)+uint64(s.Size))
	}
	if rawSize > maxImageSize {
		return nil, errors.Errorf("unsupported raw size 0x%x", rawSize)
	}

	raw := make([]byte, rawSize)
	copy(raw, image[:hdrSize])

	for _, s := range sections {
		if s.Offset == 0 || s.Size == 0 {
			continue
		}
		va := uint64(s.VirtualAddress)
		if va >= uint64(len(image)) {
			continue
		}
		n := minOf(uint64(s.Size), uint64(len(image))-va)
		copy(raw[s.Offset:], image[va:va+n])
	}
	return raw, nil
}
