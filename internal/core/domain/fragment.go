package domain

// Fragment is a bounded span of one document's text used as a retrieval unit.
// Fragments are immutable once produced by the chunker.
type Fragment struct {
	TenantID     string `json:"tenant_id,omitempty"`
	DocumentID   string `json:"document_id"`
	Filename     string `json:"filename,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
	SectionTitle string `json:"section_title,omitempty"`
	// PageNumber is 0 when the source text carried no page markers.
	PageNumber  int    `json:"page_number,omitempty"`
	ContentHash string `json:"content_hash"`
	CharCount   int    `json:"char_count"`
	WordCount   int    `json:"word_count"`
}
