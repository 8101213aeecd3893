package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Relay/internal/domain"
)

var ErrMalformedFrame = errors.New("malformed frame")

// ValidationError is a recognised event with a missing or invalid field.
type ValidationError struct {
	Event  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Event + ": " + e.Reason }

// Inbound is the raw client frame {event, data}.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func DecodeInbound(f Frame) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(f, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if in.Event == "" {
		return Inbound{}, ErrMalformedFrame
	}
	return in, nil
}

// IsCallEvent reports whether name belongs to the call signaling family.
func IsCallEvent(name string) bool { return strings.HasPrefix(name, "call.") }

// Command is the decoded form of an inbound frame. The concrete types below are
// the complete set; anything else decodes to Unrecognized.
type Command interface {
	EventName() string
}

type SendMessage struct {
	Content     string
	ReceiverID  *domain.UserID
	RoomID      *domain.RoomID
	MessageType string
}

// MessageReceipt is message.delivered or message.read.
type MessageReceipt struct {
	Event     string
	MessageID domain.MessageID
	SenderID  domain.UserID
}

// Typing is typing.start or typing.stop.
type Typing struct {
	Event      string
	ReceiverID domain.UserID
}

type CallInvite struct {
	CalleeID domain.UserID
	RoomID   *domain.RoomID
	CallID   string
	// Payload is the client object, echoed to the callee.
	Payload map[string]json.RawMessage
}

// CallResponse is call.accept, call.reject, call.busy or call.hangup.
type CallResponse struct {
	Event   string
	CallID  string
	Payload map[string]json.RawMessage
}

type Unrecognized struct {
	Event string
}

func (SendMessage) EventName() string      { return EventMessageSend }
func (c MessageReceipt) EventName() string { return c.Event }
func (c Typing) EventName() string         { return c.Event }
func (CallInvite) EventName() string       { return EventCallInvite }
func (c CallResponse) EventName() string   { return c.Event }
func (c Unrecognized) EventName() string   { return c.Event }

// Parse validates the payload of in against its event name.
func Parse(in Inbound) (Command, error) {
	switch in.Event {
	case EventMessageSend:
		return parseSendMessage(in)
	case EventMessageDelivered, EventMessageRead:
		return parseReceipt(in)
	case EventTypingStart, EventTypingStop:
		return parseTyping(in)
	case EventCallInvite:
		return parseCallInvite(in)
	case EventCallAccept, EventCallReject, EventCallBusy, EventCallHangup:
		return parseCallResponse(in)
	default:
		return Unrecognized{Event: in.Event}, nil
	}
}

// objectData rejects a payload that is not a JSON object as a malformed frame.
func objectData(in Inbound) error {
	data := bytes.TrimSpace(in.Data)
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: %s data is not an object", ErrMalformedFrame, in.Event)
	}
	return nil
}

func invalid(event, reason string) error {
	return &ValidationError{Event: event, Reason: reason}
}

func parseSendMessage(in Inbound) (Command, error) {
	if err := objectData(in); err != nil {
		return nil, err
	}
	var p struct {
		Content     string         `json:"content"`
		ReceiverID  *domain.UserID `json:"receiver_id"`
		RoomID      *domain.RoomID `json:"room_id"`
		MessageType string         `json:"message_type"`
	}
	if err := json.Unmarshal(in.Data, &p); err != nil {
		return nil, invalid(in.Event, "invalid payload")
	}
	if p.Content == "" {
		return nil, invalid(in.Event, "content is required")
	}
	if (p.ReceiverID == nil) == (p.RoomID == nil) {
		return nil, invalid(in.Event, "exactly one of receiver_id or room_id is required")
	}
	return SendMessage{
		Content:     p.Content,
		ReceiverID:  p.ReceiverID,
		RoomID:      p.RoomID,
		MessageType: p.MessageType,
	}, nil
}

func parseReceipt(in Inbound) (Command, error) {
	if err := objectData(in); err != nil {
		return nil, err
	}
	var p struct {
		MessageID domain.MessageID `json:"message_id"`
		SenderID  domain.UserID    `json:"sender_id"`
	}
	if err := json.Unmarshal(in.Data, &p); err != nil {
		return nil, invalid(in.Event, "invalid payload")
	}
	if p.MessageID == 0 {
		return nil, invalid(in.Event, "message_id is required")
	}
	return MessageReceipt{Event: in.Event, MessageID: p.MessageID, SenderID: p.SenderID}, nil
}

func parseTyping(in Inbound) (Command, error) {
	if err := objectData(in); err != nil {
		return nil, err
	}
	var p struct {
		ReceiverID domain.UserID `json:"receiver_id"`
	}
	if err := json.Unmarshal(in.Data, &p); err != nil {
		return nil, invalid(in.Event, "invalid payload")
	}
	if p.ReceiverID == 0 {
		return nil, invalid(in.Event, "receiver_id is required")
	}
	return Typing{Event: in.Event, ReceiverID: p.ReceiverID}, nil
}

// callObject requires data to be a JSON object.
func callObject(in Inbound) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(in.Data, &obj); err != nil || obj == nil {
		return nil, invalid(in.Event, "Invalid call payload")
	}
	return obj, nil
}

func parseCallInvite(in Inbound) (Command, error) {
	obj, err := callObject(in)
	if err != nil {
		return nil, err
	}
	var callee domain.UserID
	for _, key := range []string{"to_user_id", "receiver_id", "peer_user_id"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var id domain.UserID
		if json.Unmarshal(raw, &id) == nil && id > 0 {
			callee = id
			break
		}
	}
	if callee == 0 {
		return nil, invalid(in.Event, "Missing call recipient")
	}
	cmd := CallInvite{CalleeID: callee, Payload: obj}
	if raw, ok := obj["room_id"]; ok {
		var room domain.RoomID
		if json.Unmarshal(raw, &room) == nil && room > 0 {
			cmd.RoomID = &room
		}
	}
	callID, err := callIDOf(in, obj)
	if err != nil {
		return nil, err
	}
	cmd.CallID = callID
	return cmd, nil
}

func parseCallResponse(in Inbound) (Command, error) {
	obj, err := callObject(in)
	if err != nil {
		return nil, err
	}
	callID, err := callIDOf(in, obj)
	if err != nil {
		return nil, err
	}
	if callID == "" {
		return nil, invalid(in.Event, "Missing call_id")
	}
	return CallResponse{Event: in.Event, CallID: callID, Payload: obj}, nil
}

// callIDOf reads call_id as a string; numbers keep their literal form so
// {"call_id":5} and {"call_id":"5"} name the same call. Absent or null is "".
func callIDOf(in Inbound, obj map[string]json.RawMessage) (string, error) {
	raw, ok := obj["call_id"]
	if !ok {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", invalid(in.Event, "Invalid call payload")
	}
	switch id := v.(type) {
	case nil:
		return "", nil
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	default:
		return "", invalid(in.Event, "Invalid call payload")
	}
}
