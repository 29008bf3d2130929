package pdfcodec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfmerge/internal/pdftest"
)

func TestInspect_PagesAndMetadata(t *testing.T) {
	c := New(Options{})
	info, err := c.Inspect(pdftest.Build(pdftest.Doc{Pages: 3, Title: "Minutes", Author: "Board"}))
	require.NoError(t, err)

	assert.Equal(t, 3, info.PageCount)
	assert.False(t, info.IsEncrypted)
	assert.Equal(t, "Minutes", info.Metadata["Title"])
	assert.Equal(t, "Board", info.Metadata["Author"])
	assert.Equal(t, "pdftest", info.Metadata["Producer"])
}

func TestInspect_ZeroPagesIsNotAnError(t *testing.T) {
	info, err := New(Options{}).Inspect(pdftest.New(0, 100))
	require.NoError(t, err)
	assert.Equal(t, 0, info.PageCount)
}

func TestInspect_Rejects(t *testing.T) {
	c := New(Options{ValidationMode: ModeStrict})
	for name, data := range map[string][]byte{
		"empty":     nil,
		"header":    []byte("%PDF-1."),
		"plaintext": []byte("this is not a pdf at all"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Inspect(data)
			assert.Error(t, err)
		})
	}
}

func encrypt(t *testing.T, data []byte, userPW, ownerPW string) []byte {
	t.Helper()
	var out bytes.Buffer
	conf := model.NewAESConfiguration(userPW, ownerPW, 256)
	require.NoError(t, api.Encrypt(bytes.NewReader(data), &out, conf))
	return out.Bytes()
}

func TestInspect_EncryptedWithoutUserPassword(t *testing.T) {
	enc := encrypt(t, pdftest.New(2, 100), "", "owner-secret")

	info, err := New(Options{}).Inspect(enc)
	require.NoError(t, err)
	assert.True(t, info.IsEncrypted)
	assert.Equal(t, 2, info.PageCount)
}

func TestInspect_EncryptedNeedsPassword(t *testing.T) {
	enc := encrypt(t, pdftest.New(1, 100), "user-secret", "owner-secret")

	_, err := New(Options{}).Inspect(enc)
	assert.Error(t, err)

	info, err := New(Options{Password: "user-secret"}).Inspect(enc)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)
}

func TestConcat_PageOrder(t *testing.T) {
	var out bytes.Buffer
	err := New(Options{}).Concat(&out, [][]byte{pdftest.New(1, 100), pdftest.New(2, 200)})
	require.NoError(t, err)

	widths, err := pdftest.PageWidths(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []int{100, 200, 201}, widths)
}

func TestConcat_DividerPage(t *testing.T) {
	var out bytes.Buffer
	err := New(Options{DividerPage: true}).Concat(&out, [][]byte{pdftest.New(1, 100), pdftest.New(1, 200)})
	require.NoError(t, err)

	widths, err := pdftest.PageWidths(out.Bytes())
	require.NoError(t, err)
	require.Len(t, widths, 3)
	assert.Equal(t, 100, widths[0])
	assert.Equal(t, 200, widths[2])
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return 0, errors.New("write refused")
}

func TestConcat_FailureWritesNothing(t *testing.T) {
	w := &failWriter{}
	err := New(Options{}).Concat(w, [][]byte{pdftest.New(1, 100), []byte("broken")})
	assert.Error(t, err)
	assert.Zero(t, w.n)

	assert.Error(t, New(Options{}).Concat(w, nil))
}
