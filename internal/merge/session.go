// Package merge validates uploaded PDF documents, keeps them in merge order
// and concatenates them into a single PDF.
//
// A Session is owned by one caller at a time and is not safe for concurrent
// use. Parsing and writing PDFs is delegated to a Codec.
package merge

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Codec is the PDF library seam. Inspect returns an error when data is not
// a well-formed PDF; a zero PageCount is not an error at this level.
type Codec interface {
	Inspect(data []byte) (DocumentInfo, error)
	Concat(w io.Writer, docs [][]byte) error
}

// Session is an ordered list of validated documents awaiting a merge.
// The zero value is not usable; create one with NewSession.
type Session struct {
	codec Codec
	docs  []*document
	pages int
}

// NewSession returns an empty session backed by codec.
func NewSession(codec Codec) *Session {
	return &Session{codec: codec}
}

// Add validates data as a PDF with at least one page and appends a private
// copy of it. On error the session is left unchanged.
func (s *Session) Add(data []byte, name string) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	info, err := s.inspect(buf, name)
	if err != nil {
		return err
	}

	s.docs = append(s.docs, newDocument(name, buf, info.PageCount))
	s.pages += info.PageCount
	return nil
}

// AddFrom reads r to the end and adds its content as one document.
func (s *Session) AddFrom(r io.Reader, name string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return s.Add(data, name)
}

// Inspect parses data without touching the session.
func (s *Session) Inspect(data []byte) (DocumentInfo, error) {
	return s.inspect(data, "")
}

func (s *Session) inspect(data []byte, name string) (DocumentInfo, error) {
	info, err := s.codec.Inspect(data)
	if err != nil {
		return DocumentInfo{}, &ValidationError{Reason: ReasonMalformed, Name: name, Err: err}
	}
	if info.PageCount == 0 {
		return DocumentInfo{}, &ValidationError{Reason: ReasonEmpty, Name: name}
	}
	info.Valid = true
	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	return info, nil
}

// Merge concatenates every page of every held document, in session order.
// The session keeps its documents afterwards, whether or not Merge succeeds.
func (s *Session) Merge() (*MergedOutput, error) {
	if len(s.docs) == 0 {
		return nil, &MergeError{Reason: ReasonEmptySession, Detail: ErrEmptySession.Error()}
	}

	buffers := make([][]byte, len(s.docs))
	for i, d := range s.docs {
		buffers[i] = d.data
	}

	var out bytes.Buffer
	if err := s.codec.Concat(&out, buffers); err != nil {
		return nil, &MergeError{Reason: ReasonMergeFailure, Detail: err.Error(), Err: err}
	}
	return &MergedOutput{data: out.Bytes(), documents: len(s.docs)}, nil
}

// Count returns the number of held documents.
func (s *Session) Count() int {
	return len(s.docs)
}

// Pages returns the running page count recorded when documents were added.
func (s *Session) Pages() int {
	return s.pages
}

// TotalPages re-parses every held document and sums the page counts.
// Documents that no longer parse are skipped.
func (s *Session) TotalPages() int {
	total := 0
	for _, d := range s.docs {
		info, err := s.codec.Inspect(d.data)
		if err != nil {
			continue
		}
		total += info.PageCount
	}
	return total
}

// Documents returns a snapshot of the held documents in merge order.
func (s *Session) Documents() []DocumentSummary {
	out := make([]DocumentSummary, len(s.docs))
	for i, d := range s.docs {
		out[i] = DocumentSummary{
			Index:  i,
			Name:   d.name,
			Pages:  d.pages,
			Size:   len(d.data),
			Digest: hex.EncodeToString(d.digest[:]),
		}
	}
	return out
}

// Fingerprint identifies the current document list: same documents in the
// same order give the same value.
func (s *Session) Fingerprint() string {
	h := sha256.New()
	for _, d := range s.docs {
		h.Write(d.digest[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Remove drops the document at index.
func (s *Session) Remove(index int) error {
	if index < 0 || index >= len(s.docs) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.pages -= s.docs[index].pages
	s.docs = append(s.docs[:index], s.docs[index+1:]...)
	return nil
}

// Move relocates the document at from so that it ends up at index to.
func (s *Session) Move(from, to int) error {
	if from < 0 || from >= len(s.docs) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, from)
	}
	if to < 0 || to >= len(s.docs) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}
	d := s.docs[from]
	s.docs = append(s.docs[:from], s.docs[from+1:]...)
	s.docs = append(s.docs[:to], append([]*document{d}, s.docs[to:]...)...)
	return nil
}

// Reorder sets a new merge order; order[i] is the current index of the
// document that should come i-th.
func (s *Session) Reorder(order []int) error {
	if len(order) != len(s.docs) {
		return fmt.Errorf("%w: got %d indexes for %d documents", ErrInvalidOrder, len(order), len(s.docs))
	}
	seen := make([]bool, len(s.docs))
	docs := make([]*document, len(s.docs))
	for i, idx := range order {
		if idx < 0 || idx >= len(s.docs) || seen[idx] {
			return fmt.Errorf("%w: %v", ErrInvalidOrder, order)
		}
		seen[idx] = true
		docs[i] = s.docs[idx]
	}
	s.docs = docs
	return nil
}

// Reset discards all documents and returns the session to its empty state.
func (s *Session) Reset() {
	for i := range s.docs {
		s.docs[i] = nil
	}
	s.docs = nil
	s.pages = 0
}

// Close releases the held buffers. The session may be reused afterwards.
func (s *Session) Close() error {
	s.Reset()
	return nil
}
