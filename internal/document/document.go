// Package document holds the contracts between the indexing pipeline and
// its external collaborators: text extraction, metadata storage, and the
// document-type heuristics that steer chunking.
package document

import (
	"context"
	"strings"
	"time"
)

// Status tracks a document through its processing lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Metadata is one document row. PageCount is exact for paged formats and
// estimated for flowing ones.
type Metadata struct {
	ID         int64
	Filename   string
	FileType   string
	Type       string
	PageCount  int
	Status     Status
	Error      string
	UploadedAt time.Time
}

// Store persists document metadata. The pipeline only indexes documents
// whose status reaches StatusReady.
type Store interface {
	Create(ctx context.Context, meta *Metadata) error
	Get(ctx context.Context, id int64) (*Metadata, error)
	SetStatus(ctx context.Context, id int64, status Status, errMsg string) error
	Delete(ctx context.Context, id int64) error
}

// Extraction is the result of pulling text out of an uploaded file.
type Extraction struct {
	Text      string
	PageCount int
}

// Extractor converts a stored file into plain text.
type Extractor interface {
	Extract(ctx context.Context, path, fileType string) (Extraction, error)
}

// allowedExtensions are the upload formats the pipeline accepts.
var allowedExtensions = map[string]bool{
	"pdf":  true,
	"docx": true,
	"doc":  true,
}

// ValidateFileType checks the filename extension against the supported
// formats. The extension is returned lowercased even when unsupported, so
// callers can name it in their error.
func ValidateFileType(filename string) (bool, string) {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false, ""
	}
	fileType := strings.ToLower(filename[idx+1:])
	return allowedExtensions[fileType], fileType
}
