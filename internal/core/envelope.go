package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Relay/internal/domain"
)

// Envelope is the outbound wire frame. It is immutable once published.
// An empty RecipientIDs asks the fanout layer to infer recipients.
type Envelope struct {
	Event        string          `json:"event"`
	Data         json.RawMessage `json:"data"`
	RecipientIDs []domain.UserID `json:"recipient_ids,omitempty"`
}

func NewEnvelope(event string, data any, recipients ...domain.UserID) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw, RecipientIDs: recipients}, nil
}

func (e Envelope) Frame() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Event, err)
	}
	return b, nil
}

func DecodeEnvelope(f Frame) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMalformedFrame
	}
	return env, nil
}
