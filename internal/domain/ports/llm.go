// Package ports defines interfaces for external service communication.
package ports

import "context"

// GenerationRequest is one call to the text generator. Task names the
// extraction subtask or generation purpose; it is used for logging and lets
// test doubles answer per task.
type GenerationRequest struct {
	Task   string
	System string
	User   string
	// JSON asks for a single JSON document instead of prose.
	JSON bool
}

// TextGenerator is the external text-generation collaborator.
type TextGenerator interface {
	// Generate returns the complete response. With req.JSON set the response
	// is a JSON document with any markdown fences removed.
	Generate(ctx context.Context, req GenerationRequest) (string, error)

	// Stream calls onFragment for each fragment of the response, in order.
	// An error from onFragment stops the stream and is returned.
	Stream(ctx context.Context, req GenerationRequest, onFragment func(string) error) error
}
