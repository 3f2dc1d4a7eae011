package workflow

import (
	"strings"

	"github.com/TimurManjosov/mockflow/internal/engine"
)

// Request is the inbound request descriptor. Body is parsed JSON, or the raw
// text when the payload was not valid JSON.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    any               `json:"body,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Response is handed to the HTTP layer for serialization.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// Body shapes of the engine's own non-2xx responses.
const (
	msgNoMatch          = "No matching transition"
	msgConditionsNotMet = "Conditions not met"
)

func (r Request) input(params map[string]string) engine.Input {
	query := make(map[string]string, len(r.Query))
	for k, v := range r.Query {
		query[k] = v
	}
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = v
	}
	bound := make(map[string]string, len(params))
	for k, v := range params {
		bound[k] = v
	}
	return engine.Input{Body: r.Body, Query: query, Params: bound, Headers: headers}
}

func noMatchResponse(req Request) *Response {
	return &Response{
		Status:  404,
		Headers: defaultHeaders(),
		Body:    map[string]any{"error": msgNoMatch, "path": req.Path, "method": req.Method},
	}
}

func defaultHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}
