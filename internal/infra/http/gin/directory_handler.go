package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"chatlink/internal/app/dto"
	"chatlink/internal/app/services/directory"
	domainuser "chatlink/internal/domain/user"
)

type DirectoryHTTP interface {
	Search(c *gin.Context)
	Block(c *gin.Context)
	Unblock(c *gin.Context)
	UploadAvatar(c *gin.Context)
}

// DirectoryHandler exposes user search and owner-only profile mutations.
type DirectoryHandler struct {
	Service *directory.Service
	Logger  *slog.Logger
}

// Search resolves an exact username. An unknown username is a plain 404 with
// a "not found" body, not a failure.
func (h DirectoryHandler) Search(c *gin.Context) {
	if _, ok := requireAuth(c); !ok {
		return
	}
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	profile, err := h.Service.Search(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user found with that username"})
			return
		}
		if errors.Is(err, domainuser.ErrUsernameInvalid) || errors.Is(err, domainuser.ErrUsernameRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logError("user search failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
		return
	}
	c.JSON(http.StatusOK, dto.PublicProfile(profile))
}

func (h DirectoryHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

func (h DirectoryHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h DirectoryHandler) setBlocked(c *gin.Context, blocked bool) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	target := strings.TrimSpace(c.Param("id"))
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	var err error
	if blocked {
		err = h.Service.Block(c.Request.Context(), domainuser.ID(p.ID), domainuser.ID(target))
	} else {
		err = h.Service.Unblock(c.Request.Context(), domainuser.ID(p.ID), domainuser.ID(target))
	}
	if err != nil {
		switch {
		case errors.Is(err, domainuser.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, domainuser.ErrSelfBlock):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logError("block update failed", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadAvatar streams a multipart picture into the blob store and points
// the caller's profile at the resulting URL.
func (h DirectoryHandler) UploadAvatar(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	url, err := h.Service.UpdateAvatar(c.Request.Context(), domainuser.ID(p.ID), header.Filename, file, contentType)
	if err != nil {
		h.logError("avatar upload failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": url})
}

func (h DirectoryHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "error", err)
	}
}

var _ DirectoryHTTP = (*DirectoryHandler)(nil)
