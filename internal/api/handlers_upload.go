// handlers_upload.go - Document upload handler
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/qps-ai/client/internal/document"
	"github.com/rs/zerolog"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	ctrl         SessionController
	maxSize      int64
	allowedTypes []string
	log          zerolog.Logger
}

// NewUploadHandler creates a new upload handler. maxSize <= 0 disables the
// size check; an empty allowedTypes accepts any document.
func NewUploadHandler(ctrl SessionController, maxSize int64, allowedTypes []string, log zerolog.Logger) UploadHandler {
	return &UploadHandlerImpl{
		ctrl:         ctrl,
		maxSize:      maxSize,
		allowedTypes: allowedTypes,
		log:          log,
	}
}

// HandleUpload accepts a multipart document in field "file" and starts
// question extraction. With ?wait=true the response is sent after extraction
// finishes; otherwise it returns 202 immediately.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	contentType := file.Header.Get(echo.HeaderContentType)
	if !document.Accepts(file.Filename, contentType, h.allowedTypes) {
		return NewUnsupportedTypeError(file.Filename)
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		return NewPayloadTooLargeError(document.ErrTooLarge.Error())
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	doc, err := document.Read(file.Filename, contentType, src, h.maxSize)
	if err != nil {
		if errors.Is(err, document.ErrTooLarge) {
			return NewPayloadTooLargeError(err.Error())
		}
		return NewInternalError("failed to read uploaded file", err)
	}

	h.log.Info().
		Str("document_id", doc.ID).
		Str("name", doc.Name).
		Int64("size", doc.Size).
		Int("pages", doc.Pages).
		Msg("document received")

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		if err := h.ctrl.Upload(c.Request().Context(), doc); err != nil {
			return fromWorkflowError(err)
		}
		return c.JSON(http.StatusOK, currentView(h.ctrl, nil))
	}

	gen, err := h.ctrl.StartUpload(doc)
	if err != nil {
		return fromWorkflowError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"generation": gen,
		"document":   doc,
	})
}
