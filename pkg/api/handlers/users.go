package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vaani-ai/vaani-live/pkg/api/apierror"
	"github.com/vaani-ai/vaani-live/pkg/store"
)

type UsersHandler struct {
	Store store.Store
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, r, badRequest("username is required", "username"))
		return
	}
	if req.Password == "" {
		writeError(w, r, badRequest("password is required", "password"))
		return
	}

	u, err := h.Store.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       u.ID,
		"username": u.Username,
	})
}

type LoginHandler struct {
	Store store.Store
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, invalidCredentials())
			return
		}
		writeError(w, r, err)
		return
	}
	if u.Password != req.Password {
		writeError(w, r, invalidCredentials())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Login successful",
		"user_id":   u.ID,
		"user_name": u.Username,
	})
}

func invalidCredentials() *apierror.Error {
	return &apierror.Error{Type: apierror.ErrAuthentication, Message: "Invalid credentials"}
}
