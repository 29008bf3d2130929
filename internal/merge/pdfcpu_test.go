package merge_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfmerge/internal/merge"
	"pdfmerge/internal/pdfcodec"
	"pdfmerge/internal/pdftest"
)

func newSession() *merge.Session {
	return merge.NewSession(pdfcodec.New(pdfcodec.Options{}))
}

func mergedWidths(t *testing.T, s *merge.Session) []int {
	t.Helper()
	out, err := s.Merge()
	require.NoError(t, err)
	widths, err := pdftest.PageWidths(out.Bytes())
	require.NoError(t, err)
	return widths
}

func TestMerge_ThreePlusTwoPages(t *testing.T) {
	s := newSession()
	require.NoError(t, s.Add(pdftest.New(3, 100), "a.pdf"))
	require.NoError(t, s.Add(pdftest.New(2, 200), "b.pdf"))

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 5, s.TotalPages())
	assert.Equal(t, []int{100, 101, 102, 200, 201}, mergedWidths(t, s))
}

func TestMerge_OrderSensitive(t *testing.T) {
	a, b := pdftest.New(2, 100), pdftest.New(1, 300)

	ab := newSession()
	require.NoError(t, ab.Add(a, "a.pdf"))
	require.NoError(t, ab.Add(b, "b.pdf"))

	ba := newSession()
	require.NoError(t, ba.Add(b, "b.pdf"))
	require.NoError(t, ba.Add(a, "a.pdf"))

	assert.Equal(t, []int{100, 101, 300}, mergedWidths(t, ab))
	assert.Equal(t, []int{300, 100, 101}, mergedWidths(t, ba))
}

func TestMerge_SingleDocumentAllowed(t *testing.T) {
	s := newSession()
	require.NoError(t, s.Add(pdftest.New(2, 400), "only.pdf"))
	assert.Equal(t, []int{400, 401}, mergedWidths(t, s))
}

func TestMerge_RepeatableWithoutChanges(t *testing.T) {
	s := newSession()
	require.NoError(t, s.Add(pdftest.New(1, 100), "a.pdf"))
	require.NoError(t, s.Add(pdftest.New(1, 200), "b.pdf"))

	first := mergedWidths(t, s)
	second := mergedWidths(t, s)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.Count())
}

func TestAdd_ZeroPagePDF(t *testing.T) {
	s := newSession()
	err := s.Add(pdftest.New(0, 100), "blank.pdf")
	assert.ErrorIs(t, err, merge.ErrEmpty)
	assert.Equal(t, 0, s.Count())
}

func TestAdd_ArbitraryBytes(t *testing.T) {
	s := newSession()
	junk := make([]byte, 2048)
	rand.New(rand.NewSource(7)).Read(junk)

	assert.ErrorIs(t, s.Add(junk, "junk.pdf"), merge.ErrMalformed)
	assert.ErrorIs(t, s.Add([]byte("hello, world"), "text.pdf"), merge.ErrMalformed)
	assert.ErrorIs(t, s.Add(nil, "nil.pdf"), merge.ErrMalformed)
	assert.Equal(t, 0, s.Count())
}

func TestAdd_TruncatedHeader(t *testing.T) {
	s := newSession()
	err := s.Add([]byte("%PD"), "cut.pdf")

	var verr *merge.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, merge.ReasonMalformed, verr.Reason)
	assert.Equal(t, 0, s.Count())
}

func TestInspect_Idempotent(t *testing.T) {
	s := newSession()
	data := pdftest.Build(pdftest.Doc{Pages: 4, BaseWidth: 100, Title: "Quarterly"})

	first, err := s.Inspect(data)
	require.NoError(t, err)
	second, err := s.Inspect(data)
	require.NoError(t, err)

	assert.True(t, first.Valid)
	assert.Equal(t, 4, first.PageCount)
	assert.Equal(t, first.PageCount, second.PageCount)
	assert.Equal(t, first.IsEncrypted, second.IsEncrypted)
	assert.Equal(t, "Quarterly", first.Metadata["Title"])
	assert.Equal(t, 0, s.Count())
}
