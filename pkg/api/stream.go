package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/probelab/inquest/pkg/session"
)

// streamInvestigation handles GET /api/investigations/:id/stream. The full
// event sequence of the current turn is replayed from the turn log, so a
// client attaching after the run started misses nothing. Between events a
// comment line keeps intermediaries from timing out the connection.
func (s *Server) streamInvestigation(c *gin.Context) {
	id := c.Param("id")
	log, err := s.sessions.Log(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live investigation with this id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	for i := 0; ; {
		waitCtx, cancel := context.WithTimeout(ctx, s.heartbeat)
		ev, more := log.Next(waitCtx, i)
		timedOut := waitCtx.Err() == context.DeadlineExceeded
		cancel()

		if !more {
			if ctx.Err() != nil {
				return // client went away
			}
			if timedOut {
				fmt.Fprint(c.Writer, ": ping\n\n")
				flusher.Flush()
				continue
			}
			return // turn log closed, sequence complete
		}

		data, err := ev.MarshalData()
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, data)
		flusher.Flush()
		i++
	}
}
