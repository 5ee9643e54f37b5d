package handler

import (
	"net/http"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/service"
)

type UserHandler struct {
	responder
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService, cfg *config.Config) *UserHandler {
	return &UserHandler{
		responder:   responder{trusted: cfg.Trusted()},
		userService: userService,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.ByID(r.Context(), actor(r).ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	err := h.userService.Delete(r.Context(), actor(r).ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type usernameRequest struct {
	Username string `json:"username" validate:"required,username"`
}

func (h *UserHandler) SetUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	user, err := h.userService.SetUsername(r.Context(), actor(r).ID, req.Username)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (h *UserHandler) PublicByID(w http.ResponseWriter, r *http.Request) {
	id, err := userParam(r, "id")
	if err != nil {
		h.error(w, r, err)
		return
	}
	user, err := h.userService.ByID(r.Context(), id)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPublicUserView(user))
}

func (h *UserHandler) PublicByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.ByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPublicUserView(user))
}

type permissionRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *UserHandler) SetModerator(w http.ResponseWriter, r *http.Request) {
	h.setPermission(w, r, model.PermissionMod)
}

func (h *UserHandler) SetContentManager(w http.ResponseWriter, r *http.Request) {
	h.setPermission(w, r, model.PermissionContentManager)
}

func (h *UserHandler) setPermission(w http.ResponseWriter, r *http.Request, perm model.UserPermission) {
	var req permissionRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	user, err := h.userService.SetPermission(r.Context(), actor(r), r.PathValue("id"), perm, req.Enabled)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}
