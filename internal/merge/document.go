package merge

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
)

// DocumentInfo describes a parsed PDF without adding it to a session.
type DocumentInfo struct {
	Valid       bool              `json:"valid"`
	PageCount   int               `json:"page_count"`
	IsEncrypted bool              `json:"is_encrypted"`
	Metadata    map[string]string `json:"metadata"`
}

// DocumentSummary is the listing entry for one held document.
type DocumentSummary struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Pages  int    `json:"pages"`
	Size   int    `json:"size"`
	Digest string `json:"digest"`
}

type document struct {
	name   string
	data   []byte
	pages  int
	digest [sha256.Size]byte
}

func newDocument(name string, data []byte, pages int) *document {
	return &document{
		name:   name,
		data:   data,
		pages:  pages,
		digest: sha256.Sum256(data),
	}
}

// MergedOutput holds one concatenated PDF. It shares no memory with the
// session that produced it.
type MergedOutput struct {
	data      []byte
	documents int
}

// Bytes returns the merged PDF.
func (m *MergedOutput) Bytes() []byte { return m.data }

// Reader returns a reader positioned at the start of the merged PDF.
func (m *MergedOutput) Reader() *bytes.Reader { return bytes.NewReader(m.data) }

// Len is the size of the merged PDF in bytes.
func (m *MergedOutput) Len() int { return len(m.data) }

// Documents is the number of source documents that went into the output.
func (m *MergedOutput) Documents() int { return m.documents }

// EnsurePDFSuffix appends ".pdf" to name unless it already ends with it.
func EnsurePDFSuffix(name string) string {
	if strings.HasSuffix(name, ".pdf") {
		return name
	}
	return name + ".pdf"
}

// FormatSize renders a byte count the way the upload list shows it.
func FormatSize(n int) string {
	kb := float64(n) / 1024
	if kb < 1024 {
		return fmt.Sprintf("%.1f KB", kb)
	}
	return fmt.Sprintf("%.1f MB", kb/1024)
}
