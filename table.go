package pe

// RelocationField is one patched location found while walking the table.
type RelocationField struct {
	RVA   uint64
	Type  uint8
	Value uint64
}

type RelocationBlock struct {
	VirtualAddress uint32
	SizeOfBlock    uint32
	Fields         []RelocationField
}

// RelocationTable is the decoded base relocation directory of an image.
type RelocationTable struct {
	Blocks []RelocationBlock
	// Types counts fields per relocation type.
	Types map[uint8]int
}

func (t *RelocationTable) addField(field RelocationField) {
	if t.Types == nil {
		t.Types = make(map[uint8]int)
	}
	t.Types[field.Type]++
	if len(t.Blocks) == 0 {
		t.Blocks = append(t.Blocks, RelocationBlock{})
	}
	last := &t.Blocks[len(t.Blocks)-1]
	last.Fields = append(last.Fields, field)
}

// FieldCount is the number of fields across all blocks.
func (t *RelocationTable) FieldCount() int {
	n := 0
	for _, b := range t.Blocks {
		n += len(b.Fields)
	}
	return n
}
