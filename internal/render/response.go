// Package render turns skill results into channel-agnostic responses:
// a plaintext fallback, structured blocks, and an optional card template
// spec the channel adapter expands.
package render

// BlockType discriminates the Block variants.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockKVList    BlockType = "kv_list"
)

// KV is one key/value row of a kv_list block.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Block is one layout element of a rendered response.
type Block struct {
	Type  BlockType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Items []KV      `json:"items,omitempty"`
}

// CardTemplate names a card template plus the parameters to expand it with.
type CardTemplate struct {
	TemplateID string            `json:"template_id"`
	Version    string            `json:"version"`
	Params     map[string]string `json:"params"`
}

// RenderedResponse is the terminal output of the pipeline. The adapter
// renders blocks plus card_template when the channel supports cards, and
// text_fallback otherwise.
type RenderedResponse struct {
	TextFallback string         `json:"text_fallback"`
	Blocks       []Block        `json:"blocks"`
	Meta         map[string]any `json:"meta,omitempty"`
	Card         *CardTemplate  `json:"card_template,omitempty"`
}

// Paragraph builds a paragraph block.
func Paragraph(text string) Block {
	return Block{Type: BlockParagraph, Text: text}
}
