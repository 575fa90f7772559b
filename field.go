package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

type fieldAction int

const (
	actionNone fieldAction = iota
	actionApply
	actionVerify
	actionCollect
)

func (a fieldAction) String() string {
	switch a {
	case actionNone:
		return "validate"
	case actionApply:
		return "apply"
	case actionVerify:
		return "verify"
	case actionCollect:
		return "collect"
	}
	return fmt.Sprintf("fieldAction(%d)", int(a))
}

// fieldProcessor is what the block walker does with every relocated field
// once its location has been validated. The zero value checks nothing and
// is used for structural validation only.
type fieldProcessor struct {
	action fieldAction

	// actionApply
	oldBase uint64
	newBase uint64

	// actionVerify
	base      uint64
	imageSize uint32

	// actionCollect
	table *RelocationTable
}

func applyProcessor(oldBase, newBase uint64) fieldProcessor {
	return fieldProcessor{action: actionApply, oldBase: oldBase, newBase: newBase}
}

func verifyProcessor(base uint64, imageSize uint32) fieldProcessor {
	return fieldProcessor{action: actionVerify, base: base, imageSize: imageSize}
}

func collectProcessor(table *RelocationTable) fieldProcessor {
	return fieldProcessor{action: actionCollect, table: table}
}

// rebase moves an absolute address from oldBase to newBase. Arithmetic wraps
// at the width of T.
func rebase[T constraints.Unsigned](v T, oldBase, newBase uint64) T {
	return T(uint64(v) - oldBase + newBase)
}

// rvaFrom returns v relative to base. Arithmetic wraps at the width of T, so
// a PE32 image rebased across 2^32 still decodes. A base wider than T never
// matches.
func rvaFrom[T constraints.Unsigned](v T, base uint64) (uint64, bool) {
	if uint64(T(base)) != base {
		return 0, false
	}
	return uint64(v - T(base)), true
}

func readField(field []byte) uint64 {
	if len(field) == 8 {
		return binary.LittleEndian.Uint64(field)
	}
	return uint64(binary.LittleEndian.Uint32(field))
}

// beginBlock is called by the table walker before the entries of block are walked.
func (p fieldProcessor) beginBlock(block BaseRelocation) {
	if p.action == actionCollect {
		p.table.Blocks = append(p.table.Blocks, RelocationBlock{
			VirtualAddress: block.VirtualAddress,
			SizeOfBlock:    block.SizeOfBlock,
		})
	}
}

// process handles one field. field is exactly 4 or 8 bytes wide.
func (p fieldProcessor) process(field []byte, rva uint64, typ uint8) error {
	switch p.action {
	case actionNone:
		return nil

	case actionApply:
		if len(field) == 8 {
			v := binary.LittleEndian.Uint64(field)
			binary.LittleEndian.PutUint64(field, rebase(v, p.oldBase, p.newBase))
		} else {
			v := binary.LittleEndian.Uint32(field)
			binary.LittleEndian.PutUint32(field, rebase(v, p.oldBase, p.newBase))
		}
		return nil

	case actionVerify:
		var (
			decoded uint64
			ok      bool
		)
		if len(field) == 8 {
			decoded, ok = rvaFrom(binary.LittleEndian.Uint64(field), p.base)
		} else {
			decoded, ok = rvaFrom(binary.LittleEndian.Uint32(field), p.base)
		}
		if !ok {
			return errors.Wrapf(ErrBaseOutOfRange, "base 0x%x for a %d-byte field", p.base, len(field))
		}
		if decoded > uint64(p.imageSize) {
			return errors.Wrapf(ErrFieldImplausible, "field at 0x%x: RVA 0x%x > image size 0x%x",
				rva, decoded, p.imageSize)
		}
		return nil

	case actionCollect:
		p.table.addField(RelocationField{RVA: rva, Type: typ, Value: readField(field)})
		return nil
	}
	return errors.Errorf("unknown field action %v", p.action)
}
