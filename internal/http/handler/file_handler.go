package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
	"github.com/straye-as/pfmt-tracker/internal/storage"
)

// FileKind prefixes uploaded file objects in storage
const FileKind = "files"

type FileHandler struct {
	fileService *service.FileService
	storage     storage.Storage
	maxUploadMB int64
	logger      *zap.Logger
}

// NewFileHandler creates a file handler. Uploaded bytes go to objects; the
// handler then registers their metadata on the project.
func NewFileHandler(fileService *service.FileService, objects storage.Storage, maxUploadMB int64, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		storage:     objects,
		maxUploadMB: maxUploadMB,
		logger:      logger,
	}
}

// @Summary List project files
// @Tags Files
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {array} domain.File
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/files [get]
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.fileService.ListForProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, files)
}

// @Summary Register file metadata
// @Description Attach metadata for bytes already stored by the upload collaborator
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param request body domain.FileUpload true "File metadata"
// @Success 201 {object} domain.File
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/files [post]
func (h *FileHandler) Register(w http.ResponseWriter, r *http.Request) {
	var upload domain.FileUpload
	if !decodeJSON(w, r, &upload) {
		return
	}
	if !validateBody(w, &upload) {
		return
	}

	file, err := h.fileService.Register(r.Context(), chi.URLParam(r, "id"), &upload)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, file)
}

// @Summary Upload file
// @Description Store the bytes and register the file on the project
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Project ID"
// @Param file formData file true "File to upload"
// @Param category formData string false "File category"
// @Success 201 {object} domain.File
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Router /projects/{id}/files/upload [post]
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(h.maxUploadMB * 1024 * 1024); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", h.maxUploadMB))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectName := path.Join(FileKind, projectID, uuid.NewString()[:8]+"-"+sanitizeFilename(header.Filename))

	hasher := sha256.New()
	size, err := h.storage.Put(r.Context(), objectName, contentType, io.TeeReader(file, hasher))
	if err != nil {
		h.logger.Error("failed to store uploaded file", zap.String("object", objectName), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	registered, err := h.fileService.Register(r.Context(), projectID, &domain.FileUpload{
		Path:         objectName,
		OriginalName: header.Filename,
		Size:         size,
		MimeType:     contentType,
		Category:     r.FormValue("category"),
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
	})
	if err != nil {
		if delErr := h.storage.Delete(r.Context(), objectName); delErr != nil {
			h.logger.Warn("failed to remove orphaned upload", zap.String("object", objectName), zap.Error(delErr))
		}
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, registered)
}

// sanitizeFilename keeps the base name and replaces path and control characters
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == ':' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
