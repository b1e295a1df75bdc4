package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pawfinder/apiserver/internal/services"
)

// PetHandler provides HTTP handlers for pet listings.
type PetHandler struct {
	petService *services.PetService
}

// NewPetHandler constructs a handler over the pet directory service.
func NewPetHandler(petService *services.PetService) *PetHandler {
	return &PetHandler{petService: petService}
}

// PetRouter registers pet routes on the given router. List, detail,
// stats and event-stream routes are public; every mutating route
// requires auth. images may be nil when uploads are disabled.
func PetRouter(
	r chi.Router,
	handler *PetHandler,
	events *EventsHandler,
	images *ImageHandler,
	authMiddleware func(http.Handler) http.Handler,
) {
	r.Get("/", handler.ListPets)
	r.With(authMiddleware).Post("/", handler.CreatePet)
	r.Get("/stats/overview", handler.Stats)
	r.With(authMiddleware).Delete("/comments/{commentID}", handler.RemoveComment)
	r.Route("/{petID}", func(r chi.Router) {
		r.Get("/", handler.GetPet)
		r.With(authMiddleware).Put("/", handler.UpdatePet)
		r.With(authMiddleware).Delete("/", handler.DeletePet)
		r.With(authMiddleware).Post("/comments", handler.AddComment)
		r.With(authMiddleware).Post("/cheer", handler.ToggleCheer)
		r.Get("/events", events.Subscribe)
		if images != nil {
			r.With(authMiddleware).Post("/image", images.Upload)
		}
	})
}

// OwnerRouter registers the per-owner listing and stats routes.
func OwnerRouter(r chi.Router, handler *PetHandler) {
	r.Get("/{userID}/pets", handler.OwnerPets)
	r.Get("/{userID}/stats", handler.OwnerStats)
}

func (h *PetHandler) ListPets(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := services.ListPetsQuery{
		Search:  r.URL.Query().Get("search"),
		Type:    r.URL.Query().Get("type"),
		Status:  r.URL.Query().Get("status"),
		Urgency: r.URL.Query().Get("urgency"),
		Sort:    r.URL.Query().Get("sort"),
		Page:    page,
		Limit:   limit,
	}

	result, err := h.petService.List(r.Context(), query)
	if err != nil {
		writeServiceError(w, err, "failed to list pets")
		return
	}
	writePage(w, http.StatusOK, result.Items, result.Pagination)
}

func (h *PetHandler) GetPet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pet, err := h.petService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to fetch pet")
		return
	}
	writeData(w, http.StatusOK, pet)
}

func (h *PetHandler) CreatePet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var params services.CreatePetParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	pet, err := h.petService.Create(r.Context(), user, params)
	if err != nil {
		writeServiceError(w, err, "failed to create pet")
		return
	}
	writeData(w, http.StatusCreated, pet)
}

func (h *PetHandler) UpdatePet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var params services.UpdatePetParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	pet, err := h.petService.Update(r.Context(), id, user, params)
	if err != nil {
		writeServiceError(w, err, "failed to update pet")
		return
	}
	writeData(w, http.StatusOK, pet)
}

func (h *PetHandler) DeletePet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.petService.SoftDelete(r.Context(), id, user); err != nil {
		writeServiceError(w, err, "failed to delete pet")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *PetHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	comment, err := h.petService.AddComment(r.Context(), id, user, req.Text)
	if err != nil {
		writeServiceError(w, err, "failed to add comment")
		return
	}
	writeData(w, http.StatusCreated, comment)
}

func (h *PetHandler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	commentID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "commentID")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment id")
		return
	}

	if err := h.petService.RemoveComment(r.Context(), commentID, user); err != nil {
		writeServiceError(w, err, "failed to remove comment")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *PetHandler) ToggleCheer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cheered, count, err := h.petService.ToggleCheer(r.Context(), id, user)
	if err != nil {
		writeServiceError(w, err, "failed to toggle cheer")
		return
	}
	writeData(w, http.StatusOK, CheerResponse{Cheered: cheered, CheersCount: count})
}

func (h *PetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.petService.Stats(r.Context(), nil)
	if err != nil {
		writeServiceError(w, err, "failed to compute stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (h *PetHandler) OwnerPets(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.petService.List(r.Context(), services.ListPetsQuery{
		OwnerID: &ownerID,
		Sort:    r.URL.Query().Get("sort"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeServiceError(w, err, "failed to list pets")
		return
	}
	writePage(w, http.StatusOK, result.Items, result.Pagination)
}

func (h *PetHandler) OwnerStats(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.petService.Stats(r.Context(), &ownerID)
	if err != nil {
		writeServiceError(w, err, "failed to compute stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

// CommentRequest is the add-comment payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// CheerResponse reports the resulting cheer state for the caller.
type CheerResponse struct {
	Cheered     bool `json:"cheered"`
	CheersCount int  `json:"cheersCount"`
}
