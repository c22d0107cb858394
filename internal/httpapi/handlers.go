package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cms-go/internal/cms"
	"cms-go/internal/content"
	"cms-go/internal/ratelimit"
	"cms-go/internal/records"
	"cms-go/internal/sandbox"
	"cms-go/internal/versioned"
)

type postMessageRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type contentRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ListMessages(board *records.Board, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := board.List(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

func PostMessage(board *records.Board, keyFn ratelimit.KeyFunc, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		msg, err := board.Post(c.Request.Context(), ratelimit.ClientID(c, keyFn), req.Name, req.Text)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func GetVisitors(v *records.Visitors, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := v.Stats(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func RecordVisit(v *records.Visitors, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := v.Record(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func ReadContent(files *content.Files, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Query("path")
		data, err := files.Read(path)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "content": string(data)})
	}
}

func ListContent(files *content.Files, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		paths, err := files.List(c.Query("path"))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": paths})
	}
}

func WriteContent(files *content.Files, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := files.Write(req.Path, []byte(req.Content)); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "path": req.Path})
	}
}

func CreateContent(files *content.Files, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := files.Create(req.Path, []byte(req.Content)); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "success", "path": req.Path})
	}
}

func DeleteContentDir(files *content.Files, logger cms.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Query("path")
		if err := files.DeleteDir(path); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": path})
	}
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeError(c *gin.Context, logger cms.Logger, err error) {
	var cooldown *records.CooldownError
	switch {
	case errors.As(err, &cooldown):
		secs := cooldown.RetryAfterSeconds()
		c.Header(ratelimit.HeaderRetryAfter, strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Please wait before posting again", "retryAfter": secs})
	case errors.Is(err, records.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sandbox.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
	case errors.Is(err, content.ErrDestructiveDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "Destructive operations are disabled"})
	case errors.Is(err, content.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": "File already exists"})
	case errors.Is(err, content.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
	case errors.Is(err, versioned.ErrConflict):
		logger.Error("update conflict", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Update conflict, please retry"})
	default:
		logger.Error("request failed", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
