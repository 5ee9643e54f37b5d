package handler

import (
	"net/http"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/service"
)

type RobotClassHandler struct {
	responder
	classService *service.RobotClassService
}

func NewRobotClassHandler(classService *service.RobotClassService, cfg *config.Config) *RobotClassHandler {
	return &RobotClassHandler{
		responder:    responder{trusted: cfg.Trusted()},
		classService: classService,
	}
}

func (h *RobotClassHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classService.List(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *RobotClassHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userParam(r, "id")
	if err != nil {
		h.error(w, r, err)
		return
	}
	classes, err := h.classService.ListByUser(r.Context(), userID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *RobotClassHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	rc, err := h.classService.GetByName(r.Context(), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *RobotClassHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rc, err := h.classService.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

type newRobotClassRequest struct {
	Description string                    `json:"description" validate:"max=2048"`
	Metadata    *model.RobotClassMetadata `json:"metadata"`
}

// Add serves PUT /robots/{name}. The body is optional.
func (h *RobotClassHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req newRobotClassRequest
	if r.ContentLength != 0 {
		err := decodeJSON(w, r, &req)
		if err != nil {
			h.error(w, r, err)
			return
		}
	}
	rc, err := h.classService.Add(r.Context(), actor(r), r.PathValue("name"), req.Description, req.Metadata)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *RobotClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.RobotClassEdit
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	rc, err := h.classService.Update(r.Context(), actor(r), r.PathValue("name"), req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *RobotClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.classService.Delete(r.Context(), actor(r), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type blobUploadRequest struct {
	Filename    string `json:"filename" validate:"required,max=256"`
	ContentType string `json:"content_type"`
}

func (h *RobotClassHandler) UploadURDF(w http.ResponseWriter, r *http.Request) {
	var req blobUploadRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	up, err := h.classService.UploadURDF(r.Context(), actor(r), r.PathValue("name"), req.Filename, req.ContentType)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (h *RobotClassHandler) DownloadURDF(w http.ResponseWriter, r *http.Request) {
	d, err := h.classService.DownloadURDF(r.Context(), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *RobotClassHandler) UploadKernel(w http.ResponseWriter, r *http.Request) {
	var req blobUploadRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	up, err := h.classService.UploadKernel(r.Context(), actor(r), r.PathValue("name"), req.Filename, req.ContentType)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (h *RobotClassHandler) DownloadKernel(w http.ResponseWriter, r *http.Request) {
	d, err := h.classService.DownloadKernel(r.Context(), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
