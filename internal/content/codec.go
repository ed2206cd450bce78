package content

import (
	"encoding/json"
	"fmt"
)

// DecodeBlock decodes a block of the given type from JSON.
func DecodeBlock(blockType string, raw json.RawMessage) (Block, error) {
	var b Block
	switch blockType {
	case TypeHeroBlock:
		b = &HeroBlock{}
	case TypeTwoColumnRow:
		b = &TwoColumnRow{}
	case TypeImageGrid:
		b = &ImageGrid{}
	default:
		return nil, fmt.Errorf("unknown block type %q", blockType)
	}
	if err := json.Unmarshal(raw, b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", blockType, err)
	}
	return b, nil
}

// taggedBlock is the envelope EncodeBlocks writes so blocks can be decoded by type.
type taggedBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeBlocks serializes blocks with their type tags.
func EncodeBlocks(blocks []Block) ([]byte, error) {
	out := make([]taggedBlock, 0, len(blocks))
	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		out = append(out, taggedBlock{Type: b.BlockType(), Data: data})
	}
	return json.Marshal(out)
}

// DecodeBlocks reverses EncodeBlocks.
func DecodeBlocks(data []byte) ([]Block, error) {
	var tagged []taggedBlock
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, len(tagged))
	for _, t := range tagged {
		b, err := DecodeBlock(t.Type, t.Data)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
