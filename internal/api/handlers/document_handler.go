package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/models"
	"github.com/markdave123-py/docsift/internal/services"
)

const notFoundMsg = "Document not found"

type DocumentHandler struct {
	docs           *services.DocumentService
	ingest         *services.IngestService
	maxUploadBytes int64
}

func NewDocumentHandler(docs *services.DocumentService, ingest *services.IngestService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &DocumentHandler{docs: docs, ingest: ingest, maxUploadBytes: maxUploadBytes}
}

func (h *DocumentHandler) SupportedTypes(w http.ResponseWriter, _ *http.Request) {
	exts := h.ingest.SupportedExtensions()
	writeJSON(w, http.StatusOK, map[string]any{"extensions": exts, "count": len(exts)})
}

// Upload stores every part named "files" (or "file") of a multipart form.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	opts, err := uploadOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid file "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read "+fh.Filename)
			return
		}
		files = append(files, services.UploadFile{
			Filename:    filepath.Base(fh.Filename),
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	logging.FromContext(r.Context()).Info("upload received", zap.Int("files", len(files)))
	writeJSON(w, http.StatusOK, h.ingest.UploadBatch(r.Context(), files, opts))
}

func uploadOptions(r *http.Request) (services.UploadOptions, error) {
	var opts services.UploadOptions
	if inv := strings.TrimSpace(r.FormValue("investigation_id")); inv != "" {
		if _, err := uuid.Parse(inv); err != nil {
			return opts, errors.New("investigation_id must be a UUID")
		}
		opts.InvestigationID = inv
	}
	opts.UploadedBy = strings.TrimSpace(r.FormValue("uploaded_by"))

	var err error
	if opts.ChunkSize, err = optionalIntParam(r.FormValue("chunk_size"), "chunk_size", 100, 10000); err != nil {
		return opts, err
	}
	if opts.ChunkOverlap, err = optionalIntParam(r.FormValue("chunk_overlap"), "chunk_overlap", 0, 1000); err != nil {
		return opts, err
	}
	return opts, nil
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", 100, 1, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(q.Get("offset"), "offset", 0, 0, 1<<31-1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs, err := h.docs.List(r.Context(), models.ListFilter{
		InvestigationID: q.Get("investigation_id"),
		FileType:        strings.TrimPrefix(strings.ToLower(q.Get("file_type")), "."),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.docs.Chunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "Document not found or has no chunks", err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *DocumentHandler) Tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.docs.Tables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (h *DocumentHandler) Context(w http.ResponseWriter, r *http.Request) {
	dc, err := h.docs.Context(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, dc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Document deleted"})
}

// Download streams the stored original back with its detected content type.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := h.docs.Download(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrBlobUnavailable) {
		writeError(w, http.StatusNotFound, "Original file not stored")
		return
	}
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(doc.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Warn("download interrupted", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// Reindex re-parses the stored original, optionally with new chunk settings
// passed as query parameters.
func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		opts services.UploadOptions
		err  error
	)
	if opts.ChunkSize, err = optionalIntParam(q.Get("chunk_size"), "chunk_size", 100, 10000); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.ChunkOverlap, err = optionalIntParam(q.Get("chunk_overlap"), "chunk_overlap", 0, 1000); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.ingest.Reindex(r.Context(), chi.URLParam(r, "id"), opts)
	if errors.Is(err, services.ErrBlobUnavailable) {
		writeError(w, http.StatusConflict, "Original file not stored; upload it again instead")
		return
	}
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	p, err := searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Threshold, err = floatParam(r.URL.Query().Get("threshold"), "threshold", 0, 1); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.docs.Search(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) SearchHybrid(w http.ResponseWriter, r *http.Request) {
	p, err := searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.SemanticWeight, err = floatParam(r.URL.Query().Get("semantic_weight"), "semantic_weight", 0, 1); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.docs.SearchHybrid(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func searchParams(r *http.Request) (services.SearchParams, error) {
	q := r.URL.Query()
	p := services.SearchParams{
		Query:           strings.TrimSpace(q.Get("q")),
		InvestigationID: q.Get("investigation_id"),
	}
	if p.Query == "" {
		return p, errors.New("q is required")
	}
	var err error
	p.Limit, err = intParam(q.Get("limit"), "limit", 20, 1, 100)
	return p, err
}
