package dashboard

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/session"
	"applypilot-backend/internal/shared/server/middleware"
	"applypilot-backend/internal/shared/server/respond"
	"applypilot-backend/internal/shared/util"
)

// multipart overhead allowed on top of the file limits
const formSlack = 1 << 20

// Handler wires the dashboard routes to the service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the dashboard routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/recipients", h.uploadRecipients)
	rg.GET("/recipients", h.recipients)
	rg.POST("/resume", h.uploadResume)
	rg.GET("/resume", h.resume)
	rg.DELETE("/resume", h.clearResume)
	rg.POST("/dispatch", h.dispatch)
	rg.GET("/notifications", h.notifications)
	rg.GET("/campaigns", h.campaigns)
}

func (h *Handler) uploadRecipients(c *gin.Context) {
	c.Set(middleware.OperationKey, string(session.OpRecipients))
	uid := middleware.UserIDFromContext(c)
	limit := h.Svc.SpreadsheetMaxBytes
	if limit <= 0 {
		limit = DefaultSpreadsheetMaxBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formSlack)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		err = formError(err, recipients.ErrNoFile, recipients.ErrTooLarge)
		h.Svc.notify(uid, session.KindFailure, "Upload failed", err.Error())
		h.fail(c, err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}

	preview, err := h.Svc.IngestRecipients(c.Request.Context(), uid, fileHeader.Filename, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(middleware.RecipientCountKey, preview.Total)
	respond.JSON(c, http.StatusOK, preview)
}

func (h *Handler) recipients(c *gin.Context) {
	preview, err := h.Svc.Recipients(middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, preview)
}

func (h *Handler) uploadResume(c *gin.Context) {
	c.Set(middleware.OperationKey, string(session.OpResume))
	uid := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, resumes.MaxBytes+formSlack)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		err = formError(err, resumes.ErrNoFile, resumes.ErrTooLarge)
		h.Svc.notify(uid, session.KindFailure, "Resume upload failed", err.Error())
		h.fail(c, err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	asset, err := h.Svc.UploadResume(c.Request.Context(), uid, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, file)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, asset)
}

func (h *Handler) resume(c *gin.Context) {
	asset, err := h.Svc.Resume(middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"resume": asset})
}

func (h *Handler) clearResume(c *gin.Context) {
	if err := h.Svc.ClearResume(c.Request.Context(), middleware.UserIDFromContext(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) dispatch(c *gin.Context) {
	c.Set(middleware.OperationKey, string(session.OpDispatch))
	summary, err := h.Svc.GenerateAndSend(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(middleware.RecipientCountKey, summary.Total)
	respond.JSON(c, http.StatusOK, summary)
}

func (h *Handler) notifications(c *gin.Context) {
	out, err := h.Svc.Notifications(middleware.UserIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"notifications": out})
}

func (h *Handler) campaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.Svc.History(c.Request.Context(), middleware.UserIDFromContext(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"campaigns": out})
}

// fail maps service errors onto the shared error codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "session expired, please sign in again", nil)
	case errors.Is(err, session.ErrBusy):
		respond.Error(c, http.StatusConflict, respond.CodeInProgress, err.Error(), nil)
	case errors.Is(err, dispatch.ErrNoResume), errors.Is(err, dispatch.ErrNoRecipients):
		respond.Error(c, http.StatusPreconditionFailed, respond.CodePrecondition, err.Error(), nil)
	case isValidation(err):
		var rowErr *recipients.RowError
		if errors.As(err, &rowErr) {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), gin.H{"row": rowErr.Row, "missing": rowErr.Missing})
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "request failed", nil)
	}
}

// formError maps a multipart read failure onto the package's own sentinels.
func formError(err, missing, tooLarge error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return tooLarge
	}
	return missing
}

func isValidation(err error) bool {
	for _, target := range []error{
		recipients.ErrNoFile,
		recipients.ErrUnsupportedFormat,
		recipients.ErrUnreadable,
		recipients.ErrNoRows,
		recipients.ErrTooLarge,
		recipients.ErrInvalidRow,
		resumes.ErrNoFile,
		resumes.ErrUnsupportedType,
		resumes.ErrTooLarge,
		resumes.ErrContentMismatch,
		util.ErrInvalidFileName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
