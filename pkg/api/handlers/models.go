package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vaani-ai/vaani-live/pkg/store"
)

// ModelsListHandler lists the agent models registered for a client.
type ModelsListHandler struct {
	Store store.Store
}

func (h ModelsListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := strings.ToUpper(r.PathValue("client"))
	models, err := h.Store.ListModelsByClient(r.Context(), client)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(models))
	for _, m := range models {
		out = append(out, map[string]any{
			"model_id":    m.ModelID,
			"model_name":  m.ModelName,
			"client_name": m.ClientName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ModelCreateHandler registers a new agent model.
type ModelCreateHandler struct {
	Store store.Store
}

type modelCreateRequest struct {
	ModelID    string `json:"model_id"`
	ModelName  string `json:"model_name"`
	ClientName string `json:"client_name"`
}

func (h ModelCreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req modelCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ModelID) == "" {
		writeError(w, r, badRequest("model_id is required", "model_id"))
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		writeError(w, r, badRequest("model_name is required", "model_name"))
		return
	}

	m := store.Model{
		ModelID:    req.ModelID,
		ModelName:  req.ModelName,
		ClientName: strings.ToUpper(req.ClientName),
	}
	if err := h.Store.CreateModel(r.Context(), m); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Model created successfully",
		"model_id": m.ModelID,
	})
}

// ModelUpdateHandler updates name or client of an existing model. Absent
// fields keep their stored values.
type ModelUpdateHandler struct {
	Store store.Store
}

type modelUpdateRequest struct {
	ModelName  *string `json:"model_name"`
	ClientName *string `json:"client_name"`
}

func (h ModelUpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("model_id")

	var req modelUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := h.Store.GetModel(r.Context(), modelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, notFound(fmt.Sprintf("model with ID %s not found", modelID)))
			return
		}
		writeError(w, r, err)
		return
	}
	if req.ModelName != nil {
		m.ModelName = *req.ModelName
	}
	if req.ClientName != nil {
		m.ClientName = strings.ToUpper(*req.ClientName)
	}

	if err := h.Store.UpdateModel(r.Context(), m); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Model updated successfully",
		"model_id":    m.ModelID,
		"model_name":  m.ModelName,
		"client_name": m.ClientName,
	})
}
