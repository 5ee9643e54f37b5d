package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/service"
	"github.com/robolist/robolist/internal/storage"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

type ArtifactHandler struct {
	responder
	artifactService *service.ArtifactService
	maxUploadBytes  int64
}

func NewArtifactHandler(artifactService *service.ArtifactService, cfg *config.Config) *ArtifactHandler {
	return &ArtifactHandler{
		responder:       responder{trusted: cfg.Trusted()},
		artifactService: artifactService,
		maxUploadBytes:  cfg.ArtifactMaxBytes,
	}
}

// Upload serves POST /artifacts/upload/{listing_id}. Files are sent as the
// "files" fields of a multipart form.
func (h *ArtifactHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes*4)
	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.error(w, r, fmt.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, apperr.ErrInvalidInput))
			return
		}
		h.error(w, r, fmt.Errorf("invalid multipart form: %s: %w", err.Error(), apperr.ErrInvalidInput))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.error(w, r, fmt.Errorf("open upload %s: %w", fh.Filename, err))
			return
		}
		opened = append(opened, f)
		files = append(files, service.UploadFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	infos, err := h.artifactService.Upload(r.Context(), actor(r), r.PathValue("listing_id"), files)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]service.ArtifactInfo{"artifacts": infos})
}

type presignedRequest struct {
	Filename    string `json:"filename" validate:"required,max=256"`
	ContentType string `json:"content_type" validate:"required"`
}

func (h *ArtifactHandler) Presigned(w http.ResponseWriter, r *http.Request) {
	var req presignedRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	up, err := h.artifactService.PresignedUpload(r.Context(), actor(r), r.PathValue("listing_id"), req.Filename, req.ContentType)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (h *ArtifactHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.artifactService.ListForListing(r.Context(), r.PathValue("listing_id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]service.ArtifactInfo{"artifacts": infos})
}

func (h *ArtifactHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.artifactService.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Download streams the stored blob. size selects an image variant and
// defaults to large.
func (h *ArtifactHandler) Download(w http.ResponseWriter, r *http.Request) {
	size := model.ArtifactSize(r.URL.Query().Get("size"))
	body, a, err := h.artifactService.Download(r.Context(), r.PathValue("id"), size)
	if err != nil {
		h.error(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", model.DownloadContentType(a.ArtifactType))
	w.Header().Set("Content-Disposition", storage.ContentDisposition(a.Name))
	if sized, ok := body.(interface{ Size() int64 }); ok {
		w.Header().Set("Content-Length", strconv.FormatInt(sized.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, body)
	if err != nil {
		slog.Warn("artifact download interrupted", "artifact_id", a.ID, "error", err)
	}
}

type artifactEditRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=256"`
	Description *string `json:"description" validate:"omitempty,max=2048"`
}

func (h *ArtifactHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req artifactEditRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	a, err := h.artifactService.Edit(r.Context(), actor(r), r.PathValue("id"), service.ArtifactEdit{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ArtifactHandler) SetMain(w http.ResponseWriter, r *http.Request) {
	a, err := h.artifactService.SetMain(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ArtifactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.artifactService.Delete(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
