// Package gateway types - request/response bodies for the contextualizer API.
//
// DESIGN: Types used by the gateway for:
//   - Request decoding (ProcessRequest)
//   - Response envelopes (ok/service on every body)
//   - Constants shared by handlers and middleware
//
// Field names are camelCase to match the JSON consumers already built
// against this API.
package gateway

import (
	"github.com/compresr/semantic-context/internal/audit"
	"github.com/compresr/semantic-context/internal/contextualizer"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// ServiceName is reported in every response body.
	ServiceName = "semantic-contextualizer"

	// PipelineName identifies the five-stage pipeline revision.
	PipelineName = "IP-Concept-I"

	// HeaderRequestID carries the request ID in and out.
	HeaderRequestID = "X-Request-ID"

	// DefaultMaxBodyBytes caps request bodies when the config leaves it unset.
	DefaultMaxBodyBytes = 8 << 20

	// MaxRateLimitClients bounds the per-client limiter table.
	MaxRateLimitClients = 10000

	// DefaultStatsRecent is the recent-entry count when the config leaves it unset.
	DefaultStatsRecent = 10
)

// Error messages returned to clients.
const (
	errMessagesRequired = "messages array required"
	errInternal         = "internal error"
	errBodyTooLarge     = "request body too large"
	errRateLimited      = "rate limit exceeded"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ProcessRequest is the body of POST /api/contextualizer/process.
type ProcessRequest struct {
	Messages  []contextualizer.RawMessage `json:"messages"`
	MaxTokens int                         `json:"maxTokens,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ProcessResponse is the success body of the process endpoint.
type ProcessResponse struct {
	OK       bool                            `json:"ok"`
	Service  string                          `json:"service"`
	Pipeline string                          `json:"pipeline"`
	ID       string                          `json:"id"`
	Context  []contextualizer.ContextBlock   `json:"context"`
	Stats    contextualizer.Stats            `json:"stats"`
	Dropped  []contextualizer.DroppedCluster `json:"dropped"`
}

// ConfigResponse is the body of GET /api/contextualizer/config.
type ConfigResponse struct {
	OK      bool                  `json:"ok"`
	Service string                `json:"service"`
	Config  contextualizer.Config `json:"config"`
}

// StatsResponse is the body of GET /api/contextualizer/stats.
type StatsResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	audit.Usage
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
