package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newspulse/internal/moderation"
	"github.com/mohammad-safakhou/newspulse/internal/pipeline"
	"github.com/mohammad-safakhou/newspulse/models"
)

const (
	sessionHeader = "X-Session-Id"
	maxTopK       = 20
)

type askRequest struct {
	Question string `json:"question"`
}

// handleAsk answers a question over SSE. The question arrives in the body;
// top_k and keyword_boost are query params. Validation and moderation
// failures are plain JSON errors; once streaming starts, failures arrive as
// error frames instead.
func (s *Server) handleAsk(c echo.Context) error {
	started := time.Now()
	var req askRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.askRequests.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// top_k is clamped to [1,20] rather than rejected; absent means the
	// configured default.
	topK := 0
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.metrics.askRequests.WithLabelValues("rejected").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be an integer")
		}
		if n < 1 {
			n = 1
		}
		if n > maxTopK {
			n = maxTopK
		}
		topK = n
	}

	// An explicit keyword_boost=0 means pure-dense scoring; nil means the
	// configured default.
	var boost *float64
	if raw := c.QueryParam("keyword_boost"); raw != "" {
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil || b < 0 || b > 1 {
			s.metrics.askRequests.WithLabelValues("rejected").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "keyword_boost must be in [0,1]")
		}
		boost = &b
	}

	ctx := c.Request().Context()
	if err := s.Pipeline.Moderate(ctx, req.Question); err != nil {
		var rej *moderation.RejectionError
		if errors.As(err, &rej) {
			s.metrics.askRequests.WithLabelValues("rejected").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, rej.Reason)
		}
		return err
	}

	sid, _, err := s.Sessions.GetOrCreate(ctx, c.Request().Header.Get(sessionHeader))
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set(sessionHeader, sid)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()
	defer func() { s.metrics.askDuration.Observe(time.Since(started).Seconds()) }()

	outcome := "ok"
	events := s.Pipeline.Run(ctx, models.Query{
		Question:      req.Question,
		SessionID:     sid,
		TopK:          topK,
		KeywordWeight: boost,
	})
	for ev := range events {
		switch e := ev.(type) {
		case pipeline.DoneEvent:
			writeFrame(res, []byte("[DONE]"))
			s.metrics.askRequests.WithLabelValues(outcome).Inc()
			return nil
		case pipeline.ErrorEvent:
			payload, _ := json.Marshal(e)
			writeFrame(res, payload)
			s.metrics.askRequests.WithLabelValues("error").Inc()
			return nil
		default:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeFrame(res, payload)
		}
	}
	// Channel closed without a terminal frame: the client went away.
	s.metrics.askRequests.WithLabelValues("cancelled").Inc()
	return nil
}

func writeFrame(res *echo.Response, payload []byte) {
	fmt.Fprintf(res, "data: %s\n\n", payload)
	res.Flush()
}
