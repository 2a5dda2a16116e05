package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is a tenant-owned source file and its processing state.
type Document struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	ContentHash   string         `json:"content_hash"`
	SizeBytes     int64          `json:"size_bytes"`
	FragmentCount int            `json:"fragment_count"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type IndexAction string

const (
	IndexActionIndexed IndexAction = "indexed"
	IndexActionRemoved IndexAction = "removed"
)

// IndexEvent tells lexical index replicas that a document's fragments changed.
type IndexEvent struct {
	TenantID   string      `json:"tenant_id"`
	DocumentID string      `json:"document_id"`
	Action     IndexAction `json:"action"`
}

// ProcessResult summarizes one successful processing run. Duplicates are
// fragments whose content the tenant already had indexed.
type ProcessResult struct {
	DocumentID string
	Chunks     int
	Indexed    int
	Duplicates int
}
