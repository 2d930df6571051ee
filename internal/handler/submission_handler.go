package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/service"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
	"github.com/classdesk/classdesk-api/pkg/response"
)

// SubmissionHandler exposes submission endpoints.
type SubmissionHandler struct {
	service     *service.SubmissionService
	maxFileSize int64
}

// NewSubmissionHandler constructs handler.
func NewSubmissionHandler(svc *service.SubmissionService, maxFileSize int64) *SubmissionHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &SubmissionHandler{service: svc, maxFileSize: maxFileSize}
}

// Submit godoc
// @Summary Submit assignment
// @Description Upload a submission for an assignment (student only). The file part is optional; metadata-only submissions are accepted.
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assignment ID"
// @Param file formData file false "Submission file"
// @Param file_name formData string false "File name when no file part is sent"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req := models.SubmitAssignmentRequest{
		FileName: c.PostForm("file_name"),
	}
	if raw := c.PostForm("file_size"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid file_size"))
			return
		}
		req.FileSize = size
	}

	var fileHeader *multipart.FileHeader
	if fh, err := c.FormFile("file"); err == nil {
		fileHeader = fh
		if req.FileName == "" {
			req.FileName = fh.Filename
		}
		req.FileSize = fh.Size
	}

	if req.FileSize > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxFileSize)))
		return
	}

	var sub *models.Submission
	var err error
	if fileHeader != nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			response.Error(c, appErrors.Wrap(openErr, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable file part"))
			return
		}
		defer file.Close() //nolint:errcheck
		sub, err = h.service.Submit(c.Request.Context(), c.Param("id"), req, file, claims)
	} else {
		sub, err = h.service.Submit(c.Request.Context(), c.Param("id"), req, nil, claims)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, sub)
}

// Grade godoc
// @Summary Grade submission
// @Description Record grade and feedback for a submission (teacher only). Regrading overwrites the previous grade.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/grade [patch]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	graded, err := h.service.Grade(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, graded, nil)
}

// List godoc
// @Summary List submissions
// @Description Teachers see the full collection; students only their own rows
// @Tags Submissions
// @Produce json
// @Param assignment_id query string false "Filter by assignment"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.SubmissionFilter{
		AssignmentID: c.Query("assignment_id"),
		Status:       models.SubmissionStatus(c.Query("status")),
	}

	list, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, list, nil)
}

// DownloadURL godoc
// @Summary Signed download URL
// @Description Issue a time-limited token for fetching a submission file
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/download-url [get]
func (h *SubmissionHandler) DownloadURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, expiresAt, err := h.service.SignedDownloadURL(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download submission file
// @Description Stream a stored submission file referenced by a signed token
// @Tags Submissions
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /submissions/download/{token} [get]
func (h *SubmissionHandler) Download(c *gin.Context) {
	file, filename, err := h.service.OpenDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}
