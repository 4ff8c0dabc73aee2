package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/resumable_downloader/internal/byterange"
	"github.com/italolelis/resumable_downloader/internal/content"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/telemetry"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

const (
	// HashHeader carries the SHA-256 of the whole file on every download response.
	HashHeader = "X-File-Hash"

	maxGenerateBody = 1 << 20
	mebibyte        = 1 << 20
)

// ContentStore is the subset of content.Store the handler serves from.
type ContentStore interface {
	Generate(ctx context.Context, name string, sizeBytes int64) (transfer.File, bool, error)
	Stat(ctx context.Context, name string) (transfer.File, error)
	List(ctx context.Context) ([]transfer.File, error)
	Hash(ctx context.Context, name string) (string, error)
	Open(ctx context.Context, name string) (*content.Blob, error)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type infoResponse struct {
	transfer.File

	Verified *bool `json:"verified,omitempty"`
}

type FilesHandler struct {
	store         ContentStore
	defaultSizeMB int64
	telemetry     *telemetry.Telemetry
	now           func() time.Time
}

// NewFilesHandler creates a handler serving the files of store.
func NewFilesHandler(store ContentStore, defaultSizeMB int64, t *telemetry.Telemetry) *FilesHandler {
	return &FilesHandler{
		store:         store,
		defaultSizeMB: defaultSizeMB,
		telemetry:     t,
		now:           time.Now,
	}
}

// Routes serves the API at /files and mirrors it under /api/files.
func (h *FilesHandler) Routes() http.Handler {
	r := chi.NewRouter()

	h.mount(r)
	r.Route("/api", h.mount)

	return r
}

func (h *FilesHandler) mount(r chi.Router) {
	r.Get("/files", h.HandleList)
	r.Post("/files/generate", h.HandleGenerate)
	r.Get("/files/{name}/info", h.HandleInfo)
	r.Get("/files/{name}", h.HandleDownload)
	r.Head("/files/{name}", h.HandleDownload)
}

// HandleList returns the metadata of every published file.
func (h *FilesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, files)
}

// HandleGenerate creates a pseudorandom file. Generating an existing name
// returns the stored metadata unchanged.
func (h *FilesHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req transfer.GenerateRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxGenerateBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("failed to decode generate request", "err", err)
		h.writeError(w, r, &transfer.InvalidArgumentError{Field: "request body", Reason: "malformed JSON", Err: err})

		return
	}

	name, size, err := h.resolveGenerateRequest(req)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	f, created, err := h.store.Generate(r.Context(), name, size)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	message := "File already exists"
	if created {
		message = "File generated successfully"
	}

	writeJSON(w, r, http.StatusOK, transfer.GenerateResult{File: f, Message: message, Created: created})
}

func (h *FilesHandler) resolveGenerateRequest(req transfer.GenerateRequest) (string, int64, error) {
	var (
		size   int64
		suffix string
	)

	switch {
	case req.SizeBytes != nil:
		size = *req.SizeBytes
		suffix = strconv.FormatInt(size, 10) + "B"
	default:
		sizeMB := h.defaultSizeMB
		if req.SizeMB != nil {
			sizeMB = *req.SizeMB
		}

		if sizeMB < 0 || sizeMB > math.MaxInt64/mebibyte {
			return "", 0, &transfer.InvalidArgumentError{Field: "sizeMB", Reason: "out of range"}
		}

		size = sizeMB * mebibyte
		suffix = strconv.FormatInt(sizeMB, 10) + "MB"
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("testfile_%s_%d.bin", suffix, h.now().UnixMilli())
	}

	return name, size, nil
}

// HandleInfo returns the metadata of one file. With ?verify=true the content
// hash is recomputed from disk and compared.
func (h *FilesHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	name, err := fileName(r)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	f, err := h.store.Stat(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	resp := infoResponse{File: f}

	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); verify {
		hash, err := h.store.Hash(r.Context(), name)
		if err != nil {
			h.writeError(w, r, err)

			return
		}

		verified := hash == f.ContentHash
		resp.Verified = &verified
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleDownload streams the whole file or a single byte range of it.
func (h *FilesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var blob *content.Blob

	name, err := fileName(r)
	if err == nil {
		blob, err = h.store.Open(ctx, name)
	}

	if err != nil {
		if isNotFound(err) {
			h.telemetry.RecordRangeRequest(ctx, "not_found", 0)
		}

		h.writeError(w, r, err)

		return
	}
	defer blob.Close()

	size := blob.File.SizeBytes

	header := w.Header()
	header.Set("Accept-Ranges", "bytes")
	header.Set(HashHeader, blob.File.ContentHash)

	rangeHeader := r.Header.Get("Range")

	status := http.StatusOK
	span := byterange.Range{Start: 0, End: blob.File.LastByte()}
	kind := "full"

	if rangeHeader != "" {
		span, err = byterange.Parse(rangeHeader, size)
		if err != nil {
			logger.Debug("rejected range", "file_name", name, "range", rangeHeader, "size", size, "reason", err.Error())

			header.Set("Content-Range", byterange.Unsatisfied(size))
			header.Set("Content-Length", "0")
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

			h.telemetry.RecordRangeRequest(ctx, "unsatisfiable", 0)

			return
		}

		status = http.StatusPartialContent
		kind = "partial"

		header.Set("Content-Range", span.ContentRange(size))
	}

	length := span.Length()

	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Disposition", contentDisposition(name))
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		h.telemetry.RecordRangeRequest(ctx, kind, 0)

		return
	}

	written, err := io.Copy(w, blob.Section(span.Start, length))
	h.telemetry.RecordRangeRequest(ctx, kind, written)

	if err != nil {
		// Headers are gone; the client sees a short body.
		logger.Warn("failed to stream file", "file_name", name, "written", written, "expected", length, "err", err)
	}
}

// writeError maps a store error to its status code and JSON body.
func (h *FilesHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		invalidErr *transfer.InvalidArgumentError
		maxErr     *http.MaxBytesError
	)

	switch {
	case isNotFound(err):
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "file not found", Code: "not_found"})
	case errors.As(err, &maxErr):
		writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: "invalid_argument"})
	case errors.As(err, &invalidErr):
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: invalidErr.Error(), Code: "invalid_argument"})
	default:
		logger.Error("request failed", "path", r.URL.Path, "err", err)
		h.telemetry.RecordSystemError("rest", "internal")

		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

// fileName returns the decoded {name} parameter. chi matches on the escaped
// path whenever the request URL has one, so names holding characters such as
// ',' or ';' arrive percent-encoded.
func fileName(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "name")

	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", &transfer.NotFoundError{Name: raw, Err: err}
	}

	return name, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// contentDisposition always quotes the file name. Names outside printable
// ASCII fall back to the RFC 2231 form produced by mime.
func contentDisposition(name string) string {
	for _, c := range name {
		if c < 0x20 || c > 0x7e {
			return mime.FormatMediaType("attachment", map[string]string{"filename": name})
		}
	}

	return `attachment; filename="` + quoteEscaper.Replace(name) + `"`
}

func isNotFound(err error) bool {
	var nf *transfer.NotFoundError

	return errors.As(err, &nf)
}
