package pe

import "github.com/pkg/errors"

var (
	ErrNilImage        = errors.New("image buffer is nil")
	ErrInvalidPESize   = errors.New("not a PE image, smaller than the headers")
	ErrOutsideBoundary = errors.New("reading data outside boundary")
)

// Relocation table errors. Structural errors abort the walk that hit them.
var (
	ErrNoRelocations        = errors.New("no relocation table found")
	ErrEmptyRelocTable      = errors.New("relocation table has no blocks")
	ErrInvalidRelocAddress  = errors.New("invalid address of relocations")
	ErrInvalidRelocBlock    = errors.New("invalid address of relocations block")
	ErrMalformedBlock       = errors.New("relocation block smaller than its header")
	ErrUnsupportedRelocType = errors.New("not supported relocations format")
	ErrMalformedField       = errors.New("malformed relocation field")
)

var (
	// ErrFieldImplausible is reported when a field does not decode to an RVA
	// inside the image for the candidate base.
	ErrFieldImplausible = errors.New("relocation field is not based at the candidate base")

	// ErrBaseUnverifiable means the image is relocated neither to the old nor
	// to the new base, so there is no trustworthy starting state.
	ErrBaseUnverifiable = errors.New("image is not relocated to the given old base")

	// ErrBaseOutOfRange is reported for a PE32 base that does not fit in 32 bits.
	ErrBaseOutOfRange = errors.New("base address does not fit the image bitness")
)
