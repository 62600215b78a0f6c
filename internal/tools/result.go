package tools

import (
	"fmt"
	"math"
)

// Result is the uniform envelope every tool invocation produces: a short
// human-readable summary and a structured payload matching the tool's
// declared shape. Failures keep the declared shape by carrying a sentinel
// payload (empty list, zeroes, or null) next to an error-describing summary,
// so the calling layer never receives a malformed response.
type Result struct {
	Summary string `json:"summary"`
	Payload any    `json:"payload"`
	IsError bool   `json:"isError,omitempty"`
}

func success(summary string, payload any) Result {
	return Result{Summary: summary, Payload: payload}
}

// failure builds the error envelope around the tool's sentinel payload. The
// error text has already had credential material redacted by the hub layer.
func failure(operation string, sentinel any, err error) Result {
	return Result{
		Summary: fmt.Sprintf("%s failed: %v", operation, err),
		Payload: sentinel,
		IsError: true,
	}
}

// Params is the decoded parameter map of one invocation.
type Params map[string]any

// String returns a string parameter, empty when absent.
func (p Params) String(name string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return ""
}

// StringOr returns a string parameter with a default for absence.
func (p Params) StringOr(name, fallback string) string {
	if v := p.String(name); v != "" {
		return v
	}
	return fallback
}

// Int returns an integer parameter with a default for absence. JSON numbers
// decode as float64; integral floats are accepted, anything else falls back.
func (p Params) Int(name string, fallback int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}
	return fallback
}
