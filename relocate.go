package pe

import (
	"math"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type relocState int

const (
	stateNotStarted relocState = iota
	stateBaseUnverifiable
	stateAlreadyAtTarget
	stateApplyInProgress
	stateApplied
	stateApplyFailed
)

var relocStateNames = [...]string{
	stateNotStarted:       "not-started",
	stateBaseUnverifiable: "base-unverifiable",
	stateAlreadyAtTarget:  "already-at-target",
	stateApplyInProgress:  "apply-in-progress",
	stateApplied:          "applied",
	stateApplyFailed:      "apply-failed",
}

func (s relocState) String() string {
	if int(s) < len(relocStateNames) {
		return relocStateNames[s]
	}
	return "unknown"
}

// Relocator rebases mapped PE images. It keeps no state between calls; the
// caller must hold exclusive access to an image while it is being relocated.
type Relocator struct {
	logger hclog.Logger
}

// NewRelocator returns a Relocator that reports diagnostics to logger.
// A nil logger discards them.
func NewRelocator(logger hclog.Logger) *Relocator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Relocator{logger: logger}
}

var defaultRelocator = NewRelocator(nil)

func (r *Relocator) walk(image []byte, proc fieldProcessor) error {
	if image == nil {
		return ErrNilImage
	}
	w := &relocWalk{
		image:  image,
		proc:   proc,
		logger: r.logger.With("action", proc.action.String()),
	}
	return w.walkTable()
}

// ValidateRelocationTable checks the geometry of the relocation table
// (block sizes, entry types, field bounds) without looking at field values.
func (r *Relocator) ValidateRelocationTable(image []byte) error {
	return r.walk(image, fieldProcessor{})
}

func (r *Relocator) HasValidRelocationTable(image []byte) bool {
	return r.ValidateRelocationTable(image) == nil
}

// VerifyBase checks that every relocated field decodes to an RVA inside the
// image when interpreted relative to base. It is a plausibility check: one
// implausible field rejects base.
func (r *Relocator) VerifyBase(image []byte, base uint64) error {
	if image == nil {
		return ErrNilImage
	}
	h, err := ParseHeaders(image)
	if err != nil {
		return err
	}
	return r.walk(image, verifyProcessor(base, h.ImageSize()))
}

func (r *Relocator) IsRelocatedToBase(image []byte, base uint64) bool {
	return r.VerifyBase(image, base) == nil
}

// Relocations decodes the relocation table without modifying the image.
func (r *Relocator) Relocations(image []byte) (*RelocationTable, error) {
	table := new(RelocationTable)
	if err := r.walk(image, collectProcessor(table)); err != nil {
		return nil, err
	}
	return table, nil
}

// Relocate rewrites every relocated field of image so that it is valid at
// newBase. When oldBase is zero the preferred base from the headers is used.
//
// The image must currently be based at oldBase; an image already based at
// newBase is left untouched and reported as success. A failure while
// applying leaves the image partially relocated.
func (r *Relocator) Relocate(image []byte, newBase, oldBase uint64) error {
	if image == nil {
		return ErrNilImage
	}

	h, err := ParseHeaders(image)
	if oldBase == 0 {
		if err != nil {
			return errors.WithMessage(err, "cannot read the preferred image base")
		}
		oldBase = h.ImageBase()
	}

	logger := r.logger.With("new_base", hexValue(newBase), "old_base", hexValue(oldBase))
	logger.Trace("relocating", "state", stateNotStarted.String())

	if newBase == oldBase {
		logger.Debug("nothing to relocate, old base is the same as the new base")
		return nil
	}

	if err == nil && !h.Is64 && newBase > math.MaxUint32 {
		logger.Warn("new base does not fit a PE32 image")
		return errors.Wrapf(ErrBaseOutOfRange, "new base 0x%x", newBase)
	}

	if !r.IsRelocatedToBase(image, oldBase) {
		if r.IsRelocatedToBase(image, newBase) {
			logger.Debug("image is already relocated to the new base", "state", stateAlreadyAtTarget.String())
			return nil
		}
		logger.Warn("could not relocate: the module is not relocated to the given old base",
			"state", stateBaseUnverifiable.String())
		return errors.Wrapf(ErrBaseUnverifiable, "old base 0x%x", oldBase)
	}

	logger.Trace("applying relocations", "state", stateApplyInProgress.String())
	if err := r.walk(image, applyProcessor(oldBase, newBase)); err != nil {
		logger.Error("could not relocate the module", "state", stateApplyFailed.String(), "error", err)
		return errors.WithMessage(err, "failure to apply relocations")
	}

	logger.Debug("image relocated", "state", stateApplied.String())
	return nil
}

// Relocate relocates image with a Relocator that discards diagnostics.
func Relocate(image []byte, newBase, oldBase uint64) error {
	return defaultRelocator.Relocate(image, newBase, oldBase)
}

func HasValidRelocationTable(image []byte) bool {
	return defaultRelocator.HasValidRelocationTable(image)
}

func IsRelocatedToBase(image []byte, base uint64) bool {
	return defaultRelocator.IsRelocatedToBase(image, base)
}
