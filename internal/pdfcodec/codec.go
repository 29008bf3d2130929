// Package pdfcodec implements merge.Codec on top of pdfcpu.
package pdfcodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdfmerge/internal/merge"
)

const (
	ModeRelaxed = "relaxed"
	ModeStrict  = "strict"
)

var errNoData = errors.New("no data")

var disableConfigDir sync.Once

// Options tune how documents are read and written.
type Options struct {
	// ValidationMode is "relaxed" (default) or "strict".
	ValidationMode string
	// DividerPage inserts a blank page between merged documents.
	DividerPage bool
	// Password is tried as user and owner password for encrypted inputs.
	Password string
}

// Codec reads and concatenates PDFs with pdfcpu. It holds no per-document
// state, so one Codec may serve many sessions concurrently.
type Codec struct {
	opts Options
}

var _ merge.Codec = (*Codec)(nil)

// New returns a Codec. pdfcpu's on-disk configuration directory is disabled.
func New(opts Options) *Codec {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Codec{opts: opts}
}

func (c *Codec) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if c.opts.ValidationMode == ModeStrict {
		conf.ValidationMode = model.ValidationStrict
	}
	if c.opts.Password != "" {
		conf.UserPW = c.opts.Password
		conf.OwnerPW = c.opts.Password
	}
	return conf
}

// Inspect parses data and reports its page count, encryption and document
// information entries. Documents with pages are also validated.
func (c *Codec) Inspect(data []byte) (info merge.DocumentInfo, err error) {
	// pdfcpu panics on some corrupt inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	if len(data) == 0 {
		return info, errNoData
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), c.configuration())
	if err != nil {
		return info, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return info, err
	}

	info.PageCount = ctx.PageCount
	info.IsEncrypted = ctx.Encrypt != nil
	info.Metadata = documentInfo(ctx)

	if info.PageCount > 0 {
		if err := api.ValidateContext(ctx); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Concat writes the pages of docs, in order, as one PDF to w.
func (c *Codec) Concat(w io.Writer, docs [][]byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	if len(docs) == 0 {
		return errNoData
	}

	rsc := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		rsc[i] = bytes.NewReader(d)
	}

	// Buffer so a failing merge leaves w untouched.
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, c.opts.DividerPage, c.configuration()); err != nil {
		return err
	}
	_, err = out.WriteTo(w)
	return err
}

// documentInfo flattens the trailer's Info dictionary into text values.
func documentInfo(ctx *model.Context) map[string]string {
	md := map[string]string{}
	if ctx.Info == nil {
		return md
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return md
	}
	for k, v := range d {
		if s, ok := textValue(ctx, v); ok {
			md[k] = s
		}
	}
	return md
}

func textValue(ctx *model.Context, o types.Object) (string, bool) {
	o, err := ctx.Dereference(o)
	if err != nil || o == nil {
		return "", false
	}
	switch v := o.(type) {
	case types.StringLiteral:
		s, err := types.StringLiteralToString(v)
		return s, err == nil
	case types.HexLiteral:
		s, err := types.HexLiteralToString(v)
		return s, err == nil
	case types.Name:
		return string(v), true
	}
	return "", false
}
