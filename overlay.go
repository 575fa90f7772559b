package pe

// offsetFromRVA translates rva to a file offset using the section table.
// RVAs inside the headers map to themselves.
func offsetFromRVA(h *Headers, sections []SectionHeader, rva uint32) (uint64, bool) {
	for _, s := range sections {
		span := maxOf(s.VirtualSize, s.Size)
		if rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(span) {
			return uint64(rva-s.VirtualAddress) + uint64(s.Offset), true
		}
	}
	if rva < h.SizeOfHeaders() {
		return uint64(rva), true
	}
	return 0, false
}

// OverlayOffset returns the file offset where data appended after the PE
// structures begins, or 0 when raw has no overlay. raw must be in file layout.
func OverlayOffset(raw []byte) (uint64, error) {
	h, err := ParseHeaders(raw)
	if err != nil {
		return 0, err
	}
	sections, err := h.Sections(raw)
	if err != nil {
		return 0, err
	}

	size := uint64(len(raw))
	largest := uint64(0)
	updateIfLargerAndWithinFile := func(offset, length uint64) {
		end := offset + length
		if end <= size && end > largest {
			largest = end
		}
	}

	updateIfLargerAndWithinFile(h.sectionTableOffset(), uint64(len(sections))*sectionHeaderSize)
	for _, s := range sections {
		updateIfLargerAndWithinFile(uint64(s.Offset), uint64(s.Size))
	}

	// The certificate table is addressed by file offset and is itself overlay.
	for idx := 0; idx < ImageNumberOfDirectoryEntries; idx++ {
		if idx == ImageDirectoryEntrySecurity {
			continue
		}
		dd, ok := h.DirectoryEntry(idx)
		if !ok {
			continue
		}
		if offset, ok := offsetFromRVA(h, sections, dd.VirtualAddress); ok {
			updateIfLargerAndWithinFile(offset, uint64(dd.Size))
		}
	}

	if largest < size {
		return largest, nil
	}
	return 0, nil
}

// Overlay returns the bytes appended after the PE structures, or nil.
func Overlay(raw []byte) ([]byte, error) {
	offset, err := OverlayOffset(raw)
	if err != nil || offset == 0 {
		return nil, err
	}
	return raw[offset:], nil
}
