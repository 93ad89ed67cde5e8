package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/hoasen-edu/preschool-api/pkg/errors"
	"github.com/hoasen-edu/preschool-api/pkg/response"
	"github.com/hoasen-edu/preschool-api/pkg/storage"
)

// PhotoHandler serves stored confirmation photos.
type PhotoHandler struct {
	photos *storage.PhotoStore
	signed bool
}

// NewPhotoHandler constructs PhotoHandler. When signed is true, downloads
// require a valid token query parameter.
func NewPhotoHandler(photos *storage.PhotoStore, signed bool) *PhotoHandler {
	return &PhotoHandler{photos: photos, signed: signed}
}

// Download streams one photo by filename.
func (h *PhotoHandler) Download(c *gin.Context) {
	filename := c.Param("filename")

	if h.signed {
		token := c.Query("token")
		if token == "" {
			response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusForbidden, "missing download token"))
			return
		}
		ref, err := h.photos.Verify(token)
		if err != nil || ref != filename {
			response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusForbidden, "invalid download token"))
			return
		}
	}

	file, err := h.photos.Open(filename)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "photo not found"))
		return
	}
	defer file.Close()

	if ctype := mime.TypeByExtension(filepath.Ext(filename)); ctype != "" {
		c.Header("Content-Type", ctype)
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
