// HTTP handlers for the contextualizer API.
//
// DESIGN: The process handler validates the envelope with gjson before any
// decoding, so a malformed or mistyped body never reaches the pipeline.
// Messages are passed through as raw JSON; the pipeline decides what each
// message shape means.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/compresr/semantic-context/internal/audit"
	"github.com/compresr/semantic-context/internal/contextualizer"
	"github.com/compresr/semantic-context/internal/monitoring"
)

// ErrInvalidRequest marks a body that failed envelope validation.
var ErrInvalidRequest = errors.New(errMessagesRequired)

// ParseProcessRequest validates the envelope and splits out the messages.
// maxTokens may be a number or a numeric string ("1000"); anything else is
// treated as 0 (use the configured window).
func ParseProcessRequest(body []byte) (*ProcessRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidRequest
	}
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return nil, ErrInvalidRequest
	}

	req := &ProcessRequest{Messages: make([]contextualizer.RawMessage, 0, len(messages.Array()))}
	messages.ForEach(func(_, value gjson.Result) bool {
		req.Messages = append(req.Messages, contextualizer.RawMessage(value.Raw))
		return true
	})

	switch mt := gjson.GetBytes(body, "maxTokens"); mt.Type {
	case gjson.Number:
		req.MaxTokens = int(mt.Int())
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(mt.Str)); err == nil {
			req.MaxTokens = n
		}
	}
	return req, nil
}

func (g *Gateway) handleProcess(w http.ResponseWriter, r *http.Request) {
	event := monitoring.RequestEventFromContext(r.Context())

	limit := g.config.Server.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	event.RequestBodySize = len(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.reject(w, event, errBodyTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		g.reject(w, event, errMessagesRequired, http.StatusBadRequest)
		return
	}

	req, err := ParseProcessRequest(body)
	if err != nil {
		g.reject(w, event, errMessagesRequired, http.StatusBadRequest)
		return
	}
	event.InputMessages = len(req.Messages)

	res, err := g.pipeline.Process(req.Messages, req.MaxTokens)
	if err != nil {
		g.metrics.RecordRunFailure()
		g.alerts.FlagPipelineFailure(event.RequestID, len(req.Messages), err)
		event.Error = err.Error()
		g.writeError(w, errInternal, http.StatusInternalServerError)
		return
	}

	event.ContextID = res.ID
	event.PackedClusters = res.Stats.PackedClusters
	event.DroppedClusters = res.Stats.DroppedClusters
	event.PackedTokens = res.Stats.TotalTokens
	event.CompressionRatio = res.Stats.CompressionRatio
	event.PipelineMs = res.Stats.ElapsedMs

	g.metrics.RecordRun(res.Stats.PackedClusters, res.Stats.DroppedClusters, res.Stats.CompressionRatio,
		time.Duration(res.Stats.ElapsedMs)*time.Millisecond)
	g.requestLogger.LogContextualized(event)

	g.writeJSON(w, http.StatusOK, ProcessResponse{
		OK:       true,
		Service:  ServiceName,
		Pipeline: PipelineName,
		ID:       res.ID,
		Context:  res.Context,
		Stats:    res.Stats,
		Dropped:  res.Dropped,
	})
}

func (g *Gateway) reject(w http.ResponseWriter, event *monitoring.RequestEvent, msg string, status int) {
	g.alerts.FlagInvalidRequest(event.RequestID, msg)
	event.Error = msg
	g.writeError(w, msg, status)
}

func (g *Gateway) handleConfig(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, ConfigResponse{
		OK:      true,
		Service: ServiceName,
		Config:  g.pipeline.Config(),
	})
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, StatsResponse{OK: true, Service: ServiceName, Usage: g.Usage(r.Context())})
}

// Usage returns the ledger report, served from cache until the next write lands.
func (g *Gateway) Usage(ctx context.Context) audit.Usage {
	recent := g.config.Audit.StatsRecent
	if recent == 0 {
		recent = DefaultStatsRecent
	}
	key := fmt.Sprintf("usage:%d", recent)

	if usage, ok := g.stats.Get(key); ok {
		g.metrics.RecordCacheHit()
		return usage
	}
	g.metrics.RecordCacheMiss()
	usage := g.ledger.Usage(ctx, recent)
	_ = g.stats.Set(key, usage)
	return usage
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: ServiceName, Version: g.version})
}
