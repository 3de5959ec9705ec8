package handler

import (
	"context"
	"encoding/json"
)

// EchoHandler returns its input unchanged under an "echoed" key. It is the
// default handler wired up when no other is configured.
type EchoHandler struct {
	config json.RawMessage
}

func init() {
	Register("echo", func() Handler { return &EchoHandler{} })
}

func (h *EchoHandler) Init(config json.RawMessage) error {
	h.config = config
	return nil
}

func (h *EchoHandler) RunTask(ctx context.Context, token string, input json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"echoed": input,
	}, nil
}
