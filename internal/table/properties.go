package table

import (
	"github.com/corekv/corekv/internal/block"
	"github.com/corekv/corekv/internal/encoding"
)

// TableProperties holds the metadata TableBuilder records about a table in
// its properties block: sizes, counts, and the names of the comparator,
// compression, and filter policy the table was built with.
type TableProperties struct {
	ComparatorName  string
	CompressionName string
	FilterPolicy    string

	DataSize      uint64
	FilterSize    uint64
	IndexSize     uint64
	NumDataBlocks uint64
	NumEntries    uint64
	RawKeySize    uint64
	RawValueSize  uint64
}

// ParsePropertiesBlock decodes a TableProperties from the raw properties
// block, as written by TableBuilder.writePropertiesBlock.
func ParsePropertiesBlock(propsBlock *block.Block, cmp block.Comparator) (*TableProperties, error) {
	props := &TableProperties{}

	iter := propsBlock.NewIterator(cmp)
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		name := string(iter.Key())
		value := iter.Value()

		switch name {
		case "corekv.comparator":
			props.ComparatorName = string(value)
		case "corekv.compression":
			props.CompressionName = string(value)
		case "corekv.filter.policy":
			props.FilterPolicy = string(value)
		case "corekv.data.size":
			props.DataSize = decodeUint64Prop(value)
		case "corekv.filter.size":
			props.FilterSize = decodeUint64Prop(value)
		case "corekv.index.size":
			props.IndexSize = decodeUint64Prop(value)
		case "corekv.num.data.blocks":
			props.NumDataBlocks = decodeUint64Prop(value)
		case "corekv.num.entries":
			props.NumEntries = decodeUint64Prop(value)
		case "corekv.raw.key.size":
			props.RawKeySize = decodeUint64Prop(value)
		case "corekv.raw.value.size":
			props.RawValueSize = decodeUint64Prop(value)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return props, nil
}

func decodeUint64Prop(value []byte) uint64 {
	v, _, err := encoding.DecodeVarint64(value)
	if err != nil {
		return 0
	}
	return v
}
