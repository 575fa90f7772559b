package pe

// ValidatePtr reports whether the range [offset, offset+size) lies inside a
// buffer of bufLen bytes. Offsets are relative to the start of the buffer,
// so the lower bound always holds; the check guards the upper bound and the
// addition itself against overflow.
func ValidatePtr(bufLen int, offset, size uint64) bool {
	if bufLen < 0 {
		return false
	}
	end := offset + size
	// Integer overflow
	if end < offset {
		return false
	}
	return end <= uint64(bufLen)
}

// slice returns b[offset:offset+size] when the range is valid.
func slice(b []byte, offset, size uint64) ([]byte, bool) {
	if !ValidatePtr(len(b), offset, size) {
		return nil, false
	}
	return b[offset : offset+size], true
}
