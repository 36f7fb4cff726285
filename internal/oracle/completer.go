// Package oracle implements the header-classification and waterbody
// identification collaborators on top of chat-completion LLM APIs.
//
// Both are untrusted by design of their consumers: mapping.Validator and
// entity.Resolver validate and degrade whatever comes back. This package only
// has to turn a model reply into the wire records as faithfully as it can.
package oracle

import (
	"context"
	"errors"
)

// Prompt is one system+user exchange.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
	// JSON asks the provider for a JSON-only reply when it supports that.
	JSON bool
}

// Completer sends a prompt and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ErrEmptyReply is returned when a provider answers without text.
var ErrEmptyReply = errors.New("oracle: empty reply")
