package pe

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// alignUp rounds v up to a multiple of align. A zero alignment leaves v unchanged.
func alignUp[V constraints.Unsigned](v, align V) V {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

func maxOf[V constraints.Ordered](x, y V) V {
	if x < y {
		return y
	}
	return x
}

func minOf[V constraints.Ordered](x, y V) V {
	if x < y {
		return x
	}
	return y
}

func hexValue[V constraints.Integer](v V) string {
	return fmt.Sprintf("0x%x", v)
}
