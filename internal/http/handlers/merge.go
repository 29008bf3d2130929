// Package handlers serves the merge session API.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"regexp"
	"runtime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pdfmerge/internal/config"
	"pdfmerge/internal/domain"
	"pdfmerge/internal/http/middleware"
	"pdfmerge/internal/infra/logging"
	"pdfmerge/internal/merge"
	"pdfmerge/internal/sessions"
)

const (
	// minMergeDocuments is the smallest batch the API will merge.
	minMergeDocuments = 2
	mimePDF           = "application/pdf"
)

var validFilename = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// DocumentLimits returns a token-specific document cap; 0 means none.
type DocumentLimits interface {
	MaxDocuments(token string) int
}

// MergeService bundles configuration and dependencies of the merge API.
type MergeService struct {
	Config   *config.Config
	Redis    *redis.Client
	Sessions *sessions.Store
	Codec    merge.Codec
	Limits   DocumentLimits
}

// NewMergeService creates a MergeService. rdb and limits may be nil.
func NewMergeService(cfg config.Config, rdb *redis.Client, store *sessions.Store, codec merge.Codec, limits DocumentLimits) *MergeService {
	return &MergeService{
		Config:   &cfg,
		Redis:    rdb,
		Sessions: store,
		Codec:    codec,
		Limits:   limits,
	}
}

type sessionView struct {
	ID         string                  `json:"id"`
	Count      int                     `json:"count"`
	TotalPages int                     `json:"total_pages"`
	Documents  []merge.DocumentSummary `json:"documents"`
}

func viewOf(id string, s *merge.Session) sessionView {
	return sessionView{
		ID:         id,
		Count:      s.Count(),
		TotalPages: s.TotalPages(),
		Documents:  s.Documents(),
	}
}

type orderRequest struct {
	Order []int `json:"order"`
}

type inspectResult struct {
	Name  string              `json:"name"`
	Info  *merge.DocumentInfo `json:"info,omitempty"`
	Error string              `json:"error,omitempty"`
}

// HandleCreateSession opens an empty session.
func (svc *MergeService) HandleCreateSession(c *fiber.Ctx) error {
	id := svc.Sessions.Create()
	logging.Info("Merge session created", "session", id, "live", svc.Sessions.Len())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// HandleGetSession lists the documents of a session.
func (svc *MergeService) HandleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	var view sessionView
	err := svc.Sessions.With(id, func(s *merge.Session) error {
		view = viewOf(id, s)
		return nil
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view)
}

// HandleDeleteSession discards a session and its documents.
func (svc *MergeService) HandleDeleteSession(c *fiber.Ctx) error {
	if err := svc.Sessions.Delete(c.Params("id")); err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleResetSession empties a session but keeps its id.
func (svc *MergeService) HandleResetSession(c *fiber.Ctx) error {
	err := svc.Sessions.With(c.Params("id"), func(s *merge.Session) error {
		s.Reset()
		return nil
	})
	if err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleAddDocuments appends the uploaded files to a session in upload
// order. The first invalid file stops the batch; files before it stay added.
func (svc *MergeService) HandleAddDocuments(c *fiber.Ctx) error {
	id := c.Params("id")
	files, err := uploadedPDFs(c)
	if err != nil {
		return err
	}
	maxDocs := svc.maxDocuments(c)

	var view sessionView
	err = svc.Sessions.With(id, func(s *merge.Session) error {
		if maxDocs > 0 && s.Count()+len(files) > maxDocs {
			return fmt.Errorf("%w: limit is %d", domain.ErrTooManyDocuments, maxDocs)
		}
		for _, fh := range files {
			if err := addUpload(s, fh); err != nil {
				return err
			}
		}
		view = viewOf(id, s)
		return nil
	})
	if err != nil {
		logging.Warn("Adding documents failed", "session", id, "error", err)
		return httpError(err)
	}
	logging.Info("Documents added", "session", id, "files", len(files), "count", view.Count)
	return c.JSON(view)
}

// HandleRemoveDocument drops the document at :index.
func (svc *MergeService) HandleRemoveDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	index, err := c.ParamsInt("index")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid document index")
	}
	var view sessionView
	err = svc.Sessions.With(id, func(s *merge.Session) error {
		if err := s.Remove(index); err != nil {
			return err
		}
		view = viewOf(id, s)
		return nil
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view)
}

// HandleReorder sets the merge order of a session.
func (svc *MergeService) HandleReorder(c *fiber.Ctx) error {
	id := c.Params("id")
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid order body")
	}
	var view sessionView
	err := svc.Sessions.With(id, func(s *merge.Session) error {
		if err := s.Reorder(req.Order); err != nil {
			return err
		}
		view = viewOf(id, s)
		return nil
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view)
}

// HandleMergeSession merges a session and serves the result as a download.
// The session keeps its documents.
func (svc *MergeService) HandleMergeSession(c *fiber.Ctx) error {
	id := c.Params("id")
	filename, err := svc.filename(c.Query("filename"))
	if err != nil {
		return err
	}
	var pdf []byte
	err = svc.Sessions.With(id, func(s *merge.Session) error {
		var err error
		pdf, err = svc.mergeSession(c, s)
		return err
	})
	if err != nil {
		return httpError(err)
	}
	logging.Info("PDF merged", "session", id, "filename", filename, "size", merge.FormatSize(len(pdf)), "request_id", requestID(c))
	return sendPDF(c, pdf, filename)
}

// HandleMerge merges the uploaded files in one request without a session.
func (svc *MergeService) HandleMerge(c *fiber.Ctx) error {
	files, err := uploadedPDFs(c)
	if err != nil {
		return err
	}
	if len(files) < minMergeDocuments {
		return fiber.NewError(fiber.StatusBadRequest, "Please upload at least 2 PDF files to merge")
	}
	if maxDocs := svc.maxDocuments(c); maxDocs > 0 && len(files) > maxDocs {
		return httpError(fmt.Errorf("%w: limit is %d", domain.ErrTooManyDocuments, maxDocs))
	}
	filename, err := svc.filename(c.FormValue("filename"))
	if err != nil {
		return err
	}

	s := merge.NewSession(svc.Codec)
	defer s.Close()
	for _, fh := range files {
		if err := addUpload(s, fh); err != nil {
			return httpError(err)
		}
	}
	pdf, err := svc.mergeSession(c, s)
	if err != nil {
		return httpError(err)
	}
	logging.Info("PDF merged", "documents", len(files), "filename", filename, "size", merge.FormatSize(len(pdf)), "request_id", requestID(c))
	return sendPDF(c, pdf, filename)
}

// HandleInspect reports page count, encryption and metadata of each upload.
func (svc *MergeService) HandleInspect(c *fiber.Ctx) error {
	files, err := uploadedPDFs(c)
	if err != nil {
		return err
	}

	results := make([]inspectResult, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fh := range files {
		i, fh := i, fh
		g.Go(func() error {
			data, err := readUpload(fh)
			if err != nil {
				return err
			}
			results[i] = inspectResult{Name: fh.Filename}
			info, err := merge.NewSession(svc.Codec).Inspect(data)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Info = &info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot read upload: "+err.Error())
	}
	return c.JSON(fiber.Map{"results": results})
}

// mergeSession applies the two document floor, the cache and the output size limit.
func (svc *MergeService) mergeSession(c *fiber.Ctx, s *merge.Session) ([]byte, error) {
	if n := s.Count(); n > 0 && n < minMergeDocuments {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Please upload at least 2 PDF files to merge")
	}

	useCache := svc.Redis != nil && svc.Config.Cache.MergeCacheEnabled && s.Count() > 0
	key := computeMergeCacheKey(s.Fingerprint(), svc.Config.Merge.DividerPage)
	if useCache {
		if cached, err := getCachedMerge(c, svc.Redis, key); err == nil && cached != nil {
			return cached, nil
		}
	}

	out, err := s.Merge()
	if err != nil {
		logging.Error("PDF merge failed", "documents", s.Count(), "error", err)
		return nil, err
	}
	if limit := svc.Config.Limits.MaxMergedBytes; limit > 0 && out.Len() > limit {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, "Merged PDF exceeds allowed size")
	}

	if useCache {
		setCachedMerge(c, svc.Redis, key, out.Bytes(), svc.Config.Cache.MergeCacheTTL)
	}
	return out.Bytes(), nil
}

// filename returns the download name: the requested one or the configured
// default, with a .pdf suffix. Names outside [a-zA-Z0-9_.-] are rejected.
func (svc *MergeService) filename(requested string) (string, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = svc.Config.Merge.DefaultFilename
	}
	if name == "" {
		name = "merged_document.pdf"
	}
	name = merge.EnsurePDFSuffix(name)
	if !validFilename.MatchString(name) {
		return "", fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
	}
	return name, nil
}

// maxDocuments is the token's cap when set, otherwise the configured one.
func (svc *MergeService) maxDocuments(c *fiber.Ctx) int {
	if svc.Limits != nil {
		if token := middleware.APIKey(c); token != "" {
			if n := svc.Limits.MaxDocuments(token); n > 0 {
				return n
			}
		}
	}
	return svc.Config.Limits.MaxDocuments
}

// uploadedPDFs returns the multipart "files" parts after checking that each
// one looks like a PDF by extension or content type.
func uploadedPDFs(c *fiber.Ctx) ([]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Expected multipart form with PDF files")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "No PDF files uploaded")
	}
	for _, fh := range files {
		if !looksLikePDF(fh) {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s is not a PDF file", fh.Filename))
		}
	}
	return files, nil
}

func looksLikePDF(fh *multipart.FileHeader) bool {
	if strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return true
	}
	ct := fh.Header.Get(fiber.HeaderContentType)
	return strings.HasPrefix(ct, mimePDF)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func addUpload(s *merge.Session, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return s.AddFrom(f, fh.Filename)
}

func sendPDF(c *fiber.Ctx, pdf []byte, filename string) error {
	c.Set(fiber.HeaderContentType, mimePDF)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	return c.Send(pdf)
}

func requestID(c *fiber.Ctx) string {
	if id := c.Get(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// httpError maps domain and merge errors onto HTTP status codes.
func httpError(err error) error {
	var fe *fiber.Error
	var ve *merge.ValidationError
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, domain.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Merge session not found")
	case errors.Is(err, domain.ErrTooManyDocuments):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &ve):
		return fiber.NewError(fiber.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, merge.ErrEmptySession):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, merge.ErrMergeFailure):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	case errors.Is(err, merge.ErrIndexOutOfRange):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, merge.ErrInvalidOrder):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	logging.Error("Unhandled request error", "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
}

// Routes mounts the merge API on r.
func (svc *MergeService) Routes(r fiber.Router) {
	r.Post("/sessions", svc.HandleCreateSession)
	r.Get("/sessions/:id", svc.HandleGetSession)
	r.Delete("/sessions/:id", svc.HandleDeleteSession)
	r.Post("/sessions/:id/reset", svc.HandleResetSession)
	r.Post("/sessions/:id/documents", svc.HandleAddDocuments)
	r.Delete("/sessions/:id/documents/:index", svc.HandleRemoveDocument)
	r.Put("/sessions/:id/order", svc.HandleReorder)
	r.Post("/sessions/:id/merge", svc.HandleMergeSession)

	r.Post("/merge", svc.HandleMerge)
	r.Post("/inspect", svc.HandleInspect)
}
