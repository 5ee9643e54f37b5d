package handler

import (
	"net/http"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/service"
)

type RobotHandler struct {
	responder
	robotService *service.RobotService
}

func NewRobotHandler(robotService *service.RobotService, cfg *config.Config) *RobotHandler {
	return &RobotHandler{
		responder:    responder{trusted: cfg.Trusted()},
		robotService: robotService,
	}
}

// List serves GET /robot, the caller's robots.
func (h *RobotHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, actor(r).ID)
}

func (h *RobotHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := userParam(r, "id")
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.list(w, r, userID)
}

func (h *RobotHandler) list(w http.ResponseWriter, r *http.Request, userID string) {
	robots, err := h.robotService.List(r.Context(), userID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, robots)
}

func (h *RobotHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	info, err := h.robotService.GetByName(r.Context(), actor(r), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *RobotHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	info, err := h.robotService.GetByID(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type newRobotRequest struct {
	ClassName   string `json:"class_name" validate:"required"`
	Description string `json:"description" validate:"max=2048"`
}

func (h *RobotHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req newRobotRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	info, err := h.robotService.Add(r.Context(), actor(r), r.PathValue("name"), req.ClassName, req.Description)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *RobotHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.RobotEdit
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	info, err := h.robotService.Update(r.Context(), actor(r), r.PathValue("name"), req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *RobotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.robotService.Delete(r.Context(), actor(r), r.PathValue("name"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
