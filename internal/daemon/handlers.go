package daemon

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/message"
	"github.com/runnerr0/sitetime/internal/storage"
)

const statusTopDomains = 5

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version         string                `json:"version"`
	Uptime          string                `json:"uptime"`
	HeartbeatPolicy accounting.Policy     `json:"heartbeatPolicy"`
	TrackedSites    []string              `json:"trackedSites"`
	Totals          storage.Totals        `json:"totals"`
	Active          *accounting.ActiveTab `json:"active,omitempty"`
	Domains         int64                 `json:"domains"`
	TotalSeconds    int64                 `json:"totalSeconds"`
	Changes         int64                 `json:"changes"`
	TopDomains      []storage.DomainTime  `json:"topDomains"`
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := s.tracker.Snapshot(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats, err := s.store.GetStats(ctx, statusTopDomains)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Version:         s.version,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		HeartbeatPolicy: snap.Policy,
		TrackedSites:    snap.TrackedSites,
		Totals:          snap.Totals,
		Active:          snap.Active,
		Domains:         stats.Domains,
		TotalSeconds:    stats.TotalSeconds,
		Changes:         stats.Changes,
		TopDomains:      stats.TopDomains,
	})
}

// handleMessage decodes one extension message and dispatches it. Messages
// without a reply answer 204.
func (s *Server) handleMessage(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := message.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.dispatcher.Dispatch(c.Request.Context(), msg)
	if err != nil {
		s.fail(c, err)
		return
	}
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// fail maps tracker and storage errors to a status code.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, accounting.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, accounting.ErrDurationTooLong):
		status = http.StatusBadRequest
	}
	s.logger.Error("request failed",
		"id", c.GetString(requestIDKey),
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(status, gin.H{"error": err.Error()})
}
