// Package sqlite provides a SQLite-backed Store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

//go:embed schema.sql
var schema string

// Store persists messages, rooms and call sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock clock.Clock
}

var _ core.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies the schema.
func Open(path string, clk clock.Clock) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: clk}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.Timestamp = fromMillis(toMillis(s.clock.Now()))
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	if msg.Type == "" {
		msg.Type = domain.MessageText
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO message (content, sender_id, receiver_id, room_id, message_type, status, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Content, int64(msg.SenderID), nullUser(msg.ReceiverID), nullRoom(msg.RoomID),
		string(msg.Type), string(msg.Status), msg.IsRead, toMillis(msg.Timestamp),
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}
	msg.ID = domain.MessageID(id)
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	return getMessage(ctx, s.sqlDB, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMessage(ctx context.Context, q queryer, id domain.MessageID) (domain.Message, error) {
	var (
		msg      domain.Message
		receiver sql.NullInt64
		room     sql.NullInt64
		msgType  string
		status   string
		created  int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, content, sender_id, receiver_id, room_id, message_type, status, is_read, created_at
		 FROM message WHERE id = ?`, int64(id),
	).Scan(&msg.ID, &msg.Content, &msg.SenderID, &receiver, &room, &msgType, &status, &msg.IsRead, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("get message: %w", err)
	}
	if receiver.Valid {
		uid := domain.UserID(receiver.Int64)
		msg.ReceiverID = &uid
	}
	if room.Valid {
		rid := domain.RoomID(room.Int64)
		msg.RoomID = &rid
	}
	msg.Type = domain.MessageType(msgType)
	msg.Status = domain.MessageStatus(status)
	msg.Timestamp = fromMillis(created)
	return msg, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id domain.MessageID, status domain.MessageStatus) (domain.Message, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return domain.Message{}, err
	}
	next := msg.WithStatus(status)
	if next.Status == msg.Status {
		return msg, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE message SET status = ?, is_read = ? WHERE id = ?`,
		string(next.Status), next.IsRead, int64(id),
	); err != nil {
		return domain.Message{}, fmt.Errorf("update message status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) HasPriorDirectMessage(ctx context.Context, a, b domain.UserID) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM message
		 WHERE room_id IS NULL
		   AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		 LIMIT 1`,
		int64(a), int64(b), int64(b), int64(a),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("prior direct message: %w", err)
	}
	return n > 0, nil
}

// CreateRoom stores a room with its initial members.
func (s *Store) CreateRoom(ctx context.Context, name string, isGroup bool, members ...domain.UserID) (domain.Room, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO chatroom (name, is_group) VALUES (?, ?)`, name, isGroup)
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	for _, uid := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chatroom_member (room_id, user_id) VALUES (?, ?)`, id, int64(uid),
		); err != nil {
			return domain.Room{}, fmt.Errorf("add room member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Room{}, fmt.Errorf("commit: %w", err)
	}
	return domain.Room{ID: domain.RoomID(id), Name: name, IsGroup: isGroup}, nil
}

func (s *Store) AddRoomMember(ctx context.Context, id domain.RoomID, uid domain.UserID) error {
	if _, err := s.GetRoom(ctx, id); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO chatroom_member (room_id, user_id) VALUES (?, ?)`, int64(id), int64(uid))
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add room member: %w", err)
	}
	return nil
}

func (s *Store) RemoveRoomMember(ctx context.Context, id domain.RoomID, uid domain.UserID) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM chatroom_member WHERE room_id = ? AND user_id = ?`, int64(id), int64(uid))
	if err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, is_group FROM chatroom WHERE id = ?`, int64(id),
	).Scan(&room.ID, &room.Name, &room.IsGroup)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("room %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

func (s *Store) GetRoomMembers(ctx context.Context, id domain.RoomID) ([]domain.UserID, error) {
	if _, err := s.GetRoom(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT user_id FROM chatroom_member WHERE room_id = ? ORDER BY user_id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		out = append(out, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}
	return out, nil
}

func (s *Store) AreRoomMembers(ctx context.Context, id domain.RoomID, users ...domain.UserID) (bool, error) {
	for _, uid := range users {
		var n int
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM chatroom_member WHERE room_id = ? AND user_id = ?`, int64(id), int64(uid),
		).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("room membership: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) GetCallSession(ctx context.Context, callID string) (domain.CallSession, error) {
	var (
		cs      domain.CallSession
		room    sql.NullInt64
		status  string
		created int64
		started sql.NullInt64
		ended   sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT call_id, room_id, caller_id, callee_id, status, created_at, started_at, ended_at
		 FROM call_session WHERE call_id = ?`, callID,
	).Scan(&cs.ID, &room, &cs.CallerID, &cs.CalleeID, &status, &created, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CallSession{}, fmt.Errorf("call %s: %w", callID, core.ErrNotFound)
	}
	if err != nil {
		return domain.CallSession{}, fmt.Errorf("get call session: %w", err)
	}
	if room.Valid {
		rid := domain.RoomID(room.Int64)
		cs.RoomID = &rid
	}
	cs.Status = domain.CallStatus(status)
	cs.CreatedAt = fromMillis(created)
	cs.StartedAt = timePtr(started)
	cs.EndedAt = timePtr(ended)
	return cs, nil
}

func (s *Store) CreateCallSession(ctx context.Context, session domain.CallSession) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO call_session (call_id, room_id, caller_id, callee_id, status, created_at, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, nullRoom(session.RoomID), int64(session.CallerID), int64(session.CalleeID),
		string(session.Status), toMillis(session.CreatedAt), nullTime(session.StartedAt), nullTime(session.EndedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("call %s: %w", session.ID, core.ErrAlreadyExists)
		}
		return fmt.Errorf("create call session: %w", err)
	}
	return nil
}

// UpdateCallSession is a compare-and-swap on status; the WHERE clause makes it
// safe across processes sharing the database.
func (s *Store) UpdateCallSession(ctx context.Context, callID string, expected, next domain.CallStatus, at time.Time) (domain.CallSession, error) {
	cur, err := s.GetCallSession(ctx, callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if cur.Status != expected {
		return cur, fmt.Errorf("call %s is %s: %w", callID, cur.Status, core.ErrStaleState)
	}
	updated, err := cur.Transition(next, at)
	if err != nil {
		return cur, fmt.Errorf("call %s: %w", callID, err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE call_session SET status = ?, started_at = ?, ended_at = ?
		 WHERE call_id = ? AND status = ?`,
		string(updated.Status), nullTime(updated.StartedAt), nullTime(updated.EndedAt), callID, string(expected),
	)
	if err != nil {
		return cur, fmt.Errorf("update call session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cur, fmt.Errorf("update call session: %w", err)
	}
	if n == 0 {
		return cur, fmt.Errorf("call %s changed concurrently: %w", callID, core.ErrStaleState)
	}
	return updated, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func nullUser(id *domain.UserID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullRoom(id *domain.RoomID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
