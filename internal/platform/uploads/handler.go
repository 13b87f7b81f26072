package uploads

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/response"
)

// PublicPrefix is where stored files are served.
const PublicPrefix = "/uploads"

const sniffLen = 512

// allowed maps a sniffed content type to the extensions accepted for it.
// The first entry is used when the client's name has none of them.
var allowed = map[string][]string{
	"image/png":       {".png"},
	"image/jpeg":      {".jpg", ".jpeg"},
	"application/pdf": {".pdf"},
}

// Result is returned for each stored file.
type Result struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type Handler struct {
	store   Store
	maxSize int64
	logger  zerolog.Logger
}

func NewHandler(store Store, maxSize int64, logger zerolog.Logger) *Handler {
	return &Handler{store: store, maxSize: maxSize, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/uploads", h.Upload)
}

// Upload stores the multipart field "file" under a random name. The type is
// taken from the content, not the client's header.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("validation failed", response.FieldError{Field: "file", Message: "is required"})
	}
	if fh.Size > h.maxSize {
		return apperr.InvalidInput("file exceeds the maximum size of %d bytes", h.maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	exts, ok := allowed[contentType]
	if !ok {
		return apperr.InvalidInput("file type %s is not allowed; use png, jpeg or pdf", contentType)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !contains(exts, ext) {
		ext = exts[0]
	}
	name := uuid.NewString() + ext

	size, err := h.store.Save(c.Request().Context(), name, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		return err
	}
	h.logger.Info().Str("file", name).Int64("size", size).Str("content_type", contentType).Msg("file uploaded")
	return response.Created(c, "file uploaded", Result{
		URL:         path.Join(PublicPrefix, name),
		FileName:    name,
		Size:        size,
		ContentType: contentType,
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
