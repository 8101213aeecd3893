// Package memory is an in-process Store used for single-instance runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type roomRecord struct {
	room    domain.Room
	members map[domain.UserID]struct{}
}

type Store struct {
	mu       sync.RWMutex
	clock    clock.Clock
	nextMsg  domain.MessageID
	nextRoom domain.RoomID
	messages map[domain.MessageID]domain.Message
	rooms    map[domain.RoomID]*roomRecord
	calls    map[string]domain.CallSession
}

var _ core.Store = (*Store)(nil)

func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:    clk,
		messages: make(map[domain.MessageID]domain.Message),
		rooms:    make(map[domain.RoomID]*roomRecord),
		calls:    make(map[string]domain.CallSession),
	}
}

func (s *Store) SaveMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg.ID = s.nextMsg
	msg.Timestamp = s.clock.Now().UTC()
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	if msg.Type == "" {
		msg.Type = domain.MessageText
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, id domain.MessageID) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, core.ErrNotFound)
	}
	return msg, nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, id domain.MessageID, status domain.MessageStatus) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, core.ErrNotFound)
	}
	msg = msg.WithStatus(status)
	s.messages[id] = msg
	return msg, nil
}

func (s *Store) HasPriorDirectMessage(_ context.Context, a, b domain.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if !m.IsDirect() {
			continue
		}
		if (m.SenderID == a && *m.ReceiverID == b) || (m.SenderID == b && *m.ReceiverID == a) {
			return true, nil
		}
	}
	return false, nil
}

// CreateRoom stores a room with its initial members.
func (s *Store) CreateRoom(_ context.Context, name string, isGroup bool, members ...domain.UserID) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRoom++
	rec := &roomRecord{
		room:    domain.Room{ID: s.nextRoom, Name: name, IsGroup: isGroup},
		members: make(map[domain.UserID]struct{}, len(members)),
	}
	for _, uid := range members {
		rec.members[uid] = struct{}{}
	}
	s.rooms[rec.room.ID] = rec
	return rec.room, nil
}

func (s *Store) AddRoomMember(_ context.Context, id domain.RoomID, uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[id]
	if !ok {
		return fmt.Errorf("room %d: %w", id, core.ErrNotFound)
	}
	rec.members[uid] = struct{}{}
	return nil
}

func (s *Store) RemoveRoomMember(_ context.Context, id domain.RoomID, uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[id]
	if !ok {
		return fmt.Errorf("room %d: %w", id, core.ErrNotFound)
	}
	delete(rec.members, uid)
	return nil
}

func (s *Store) GetRoom(_ context.Context, id domain.RoomID) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %d: %w", id, core.ErrNotFound)
	}
	return rec.room, nil
}

func (s *Store) GetRoomMembers(_ context.Context, id domain.RoomID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", id, core.ErrNotFound)
	}
	out := make([]domain.UserID, 0, len(rec.members))
	for uid := range rec.members {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) AreRoomMembers(_ context.Context, id domain.RoomID, users ...domain.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[id]
	if !ok {
		return false, nil
	}
	for _, uid := range users {
		if _, ok := rec.members[uid]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) GetCallSession(_ context.Context, callID string) (domain.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.calls[callID]
	if !ok {
		return domain.CallSession{}, fmt.Errorf("call %s: %w", callID, core.ErrNotFound)
	}
	return cs, nil
}

func (s *Store) CreateCallSession(_ context.Context, session domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[session.ID]; ok {
		return fmt.Errorf("call %s: %w", session.ID, core.ErrAlreadyExists)
	}
	s.calls[session.ID] = session
	return nil
}

func (s *Store) UpdateCallSession(_ context.Context, callID string, expected, next domain.CallStatus, at time.Time) (domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.calls[callID]
	if !ok {
		return domain.CallSession{}, fmt.Errorf("call %s: %w", callID, core.ErrNotFound)
	}
	if cs.Status != expected {
		return cs, fmt.Errorf("call %s is %s: %w", callID, cs.Status, core.ErrStaleState)
	}
	updated, err := cs.Transition(next, at)
	if err != nil {
		return cs, fmt.Errorf("call %s: %w", callID, err)
	}
	s.calls[callID] = updated
	return updated, nil
}
