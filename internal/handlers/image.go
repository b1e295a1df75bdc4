package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pawfinder/apiserver/internal/services"
	"github.com/pawfinder/apiserver/internal/storage"
)

const (
	maxImageBytes      = 10 << 20
	maxMultipartMemory = 16 << 20
	formFieldImage     = "image"
)

// imageExtensions maps accepted upload content types to object key
// extensions.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageHandler stores pet listing photos in object storage and serves
// them back.
type ImageHandler struct {
	petService *services.PetService
	storage    *storage.Storage
}

func NewImageHandler(petService *services.PetService, store *storage.Storage) *ImageHandler {
	return &ImageHandler{petService: petService, storage: store}
}

// Upload stores a new listing photo and records its URL on the pet.
// Same authorization as updating the pet.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	if header.Size > maxImageBytes {
		writeError(w, http.StatusBadRequest, "image too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := imageExtensions[contentType]
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported image type")
		return
	}

	key := fmt.Sprintf("pets/%d/%s%s", id, uuid.NewString(), ext)
	if err := h.storage.Put(r.Context(), key, io.LimitReader(file, maxImageBytes), header.Size, contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	pet, err := h.petService.SetImageURL(r.Context(), id, user, "/images/"+key)
	if err != nil {
		// Orphaned objects are cleaned up out of band.
		_ = h.storage.Delete(r.Context(), key)
		writeServiceError(w, err, "failed to update pet")
		return
	}
	writeData(w, http.StatusOK, pet)
}

// Serve streams a stored image back to the client.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid image key")
		return
	}

	reader, err := h.storage.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer reader.Close()

	if ext := path.Ext(key); ext != "" {
		for contentType, candidate := range imageExtensions {
			if candidate == ext {
				w.Header().Set("Content-Type", contentType)
				break
			}
		}
	}
	if _, err := io.Copy(w, reader); err != nil && !errors.Is(err, io.EOF) {
		return
	}
}
