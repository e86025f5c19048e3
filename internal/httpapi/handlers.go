package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/incident"
	"github.com/Martian-dev/mailpoll/internal/mailops"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/sync"
)

type markRequest struct {
	IDs  []string `json:"ids" binding:"required"`
	Read *bool    `json:"read"`
}

func (s *Server) fetch(c *gin.Context) {
	name := c.Param("name")
	res, err := s.Manager.Tick(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	incidents := res.Incidents
	if incidents == nil {
		incidents = []incident.Incident{}
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":   res.Outcome,
		"incidents": incidents,
		"cursor":    res.Cursor,
	})
}

func (s *Server) cursor(c *gin.Context) {
	cur, err := s.Manager.Cursor(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

func (s *Server) resetCursor(c *gin.Context) {
	if err := s.Manager.ResetCursor(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) dispatch(c *gin.Context) {
	limit := sync.DispatchBatch
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	n, err := s.Manager.Dispatch(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": n})
}

func (s *Server) getItems(c *gin.Context) {
	ids := splitIDs(c.Query("ids"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	items, err := s.Ops.GetItems(c.Request.Context(), ids)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) markItems(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	read := req.Read == nil || *req.Read
	marks, err := s.Ops.MarkItems(c.Request.Context(), req.IDs, read)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, marks)
}

func (s *Server) itemEML(c *gin.Context) {
	file, err := s.Ops.ItemAsEML(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(file.Name, `"`, "'")+`"`)
	c.Data(http.StatusOK, "message/rfc822", file.Data)
}

func (s *Server) mailboxHealth(c *gin.Context) {
	folder := c.DefaultQuery("folder", s.Folder)
	if err := s.Ops.TestConnection(c.Request.Context(), folder); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) incidents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	rows, err := s.Log.Incidents(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) file(c *gin.Context) {
	name, data, err := s.Log.File(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "'")+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// fail renders err with the status its cause maps to
func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	message, detail := err.Error(), ""

	var failure *sync.Failure
	var opErr *mailops.Error
	switch {
	case errors.As(err, &failure):
		message, detail = failure.Message, failure.Detail
	case errors.As(err, &opErr):
		message, detail = opErr.Message, opErr.Err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": message}
	if detail != "" {
		body["detail"] = detail
	}
	c.JSON(status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sync.ErrPollInFlight):
		return http.StatusConflict
	case errors.Is(err, sync.ErrUnknownInstance), errors.Is(err, mailops.ErrItemsNotFound):
		return http.StatusNotFound
	case errors.Is(err, sync.ErrRateLimitExhausted):
		return http.StatusTooManyRequests
	}

	switch mailstore.KindOf(err) {
	case mailstore.KindNotFound:
		return http.StatusNotFound
	case mailstore.KindTransient:
		return http.StatusServiceUnavailable
	case mailstore.KindRateLimited:
		return http.StatusTooManyRequests
	case mailstore.KindTransport, mailstore.KindMalformed, mailstore.KindUnauthorized:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
