package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/shared/telemetry"
)

const table = "session"

// Store keeps dashboard sessions in an in-process memdb. Write transactions
// are serialized by memdb, which makes Begin an atomic test-and-set.
type Store struct {
	db  *memdb.MemDB
	now func() time.Time
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
				},
			},
		},
	}
}

// NewStore builds an empty store. A nil clock uses time.Now.
func NewStore(now func() time.Time) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("session schema: %w", err)
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, now: now}, nil
}

// Open starts a session for id, or refreshes the identity of an existing one.
func (s *Store) Open(id Identity) (Session, error) {
	uid := strings.TrimSpace(id.UID)
	if uid == "" {
		return Session{}, fmt.Errorf("open session: empty uid")
	}
	id.UID = uid

	txn := s.db.Txn(true)
	defer txn.Abort()

	now := s.now()
	next := &Session{UserID: uid, OpenedAt: now}
	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return Session{}, err
	}
	if raw != nil {
		next = raw.(*Session).clone()
	}
	next.Identity = id
	next.LastSeen = now
	if err := txn.Insert(table, next); err != nil {
		return Session{}, err
	}
	txn.Commit()
	return *next.clone(), nil
}

// Get returns a snapshot of the user's session.
func (s *Store) Get(uid string) (Session, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return Session{}, err
	}
	if raw == nil {
		return Session{}, ErrNotFound
	}
	return *raw.(*Session).clone(), nil
}

// Close ends the session, dropping recipients, resume and notifications. The
// removed session is returned so the caller can release stored binaries.
func (s *Store) Close(uid string) (Session, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return Session{}, err
	}
	if raw == nil {
		return Session{}, ErrNotFound
	}
	if err := txn.Delete(table, raw); err != nil {
		return Session{}, err
	}
	txn.Commit()
	return *raw.(*Session).clone(), nil
}

// Begin marks op as in flight. Only one operation runs per session at a time.
func (s *Store) Begin(uid string, op Operation) error {
	_, err := s.update(uid, func(sess *Session) error {
		if sess.Busy != "" {
			return fmt.Errorf("%w: %s", ErrBusy, sess.Busy)
		}
		sess.Busy = op
		return nil
	})
	return err
}

// End clears the in-flight flag set by Begin. A session closed in the
// meantime is not an error.
func (s *Store) End(uid string, op Operation) {
	_, err := s.update(uid, func(sess *Session) error {
		if sess.Busy == op {
			sess.Busy = ""
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		telemetry.Error("session.end_failed", map[string]any{"user_id": uid, "operation": string(op), "error": err.Error()})
	}
}

// ReplaceRecipients swaps in a freshly ingested recipient list.
func (s *Store) ReplaceRecipients(uid string, records []recipients.Record) error {
	_, err := s.update(uid, func(sess *Session) error {
		sess.Recipients = append([]recipients.Record(nil), records...)
		return nil
	})
	return err
}

// SetResume stores asset and returns the one it replaced, if any.
func (s *Store) SetResume(uid string, asset resumes.Asset) (*resumes.Asset, error) {
	var prev *resumes.Asset
	_, err := s.update(uid, func(sess *Session) error {
		prev = sess.Resume
		sess.Resume = &asset
		return nil
	})
	return prev, err
}

// ClearResume removes the resume and returns it, if one was set.
func (s *Store) ClearResume(uid string) (*resumes.Asset, error) {
	var prev *resumes.Asset
	_, err := s.update(uid, func(sess *Session) error {
		prev = sess.Resume
		sess.Resume = nil
		return nil
	})
	return prev, err
}

// Notify queues n, keeping only the most recent MaxNotifications.
func (s *Store) Notify(uid string, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.update(uid, func(sess *Session) error {
		sess.Notifications = append(sess.Notifications, n)
		if extra := len(sess.Notifications) - MaxNotifications; extra > 0 {
			sess.Notifications = sess.Notifications[extra:]
		}
		return nil
	})
	return err
}

// Drain returns and clears the pending notifications, oldest first.
func (s *Store) Drain(uid string) ([]Notification, error) {
	var out []Notification
	_, err := s.update(uid, func(sess *Session) error {
		out = sess.Notifications
		sess.Notifications = nil
		return nil
	})
	return out, err
}

// Sweep removes sessions idle for longer than idle. Sessions with an
// operation in flight are kept.
func (s *Store) Sweep(idle time.Duration) ([]Session, error) {
	cutoff := s.now().Add(-idle)

	txn := s.db.Txn(true)
	defer txn.Abort()
	it, err := txn.Get(table, "id")
	if err != nil {
		return nil, err
	}
	var stale []*Session
	for obj := it.Next(); obj != nil; obj = it.Next() {
		sess := obj.(*Session)
		if sess.Busy == "" && sess.LastSeen.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	evicted := make([]Session, 0, len(stale))
	for _, sess := range stale {
		if err := txn.Delete(table, sess); err != nil {
			return nil, err
		}
		evicted = append(evicted, *sess.clone())
	}
	txn.Commit()
	return evicted, nil
}

// RunSweeper calls Sweep every interval until ctx is done. onEvict, if set,
// receives each removed session.
func (s *Store) RunSweeper(ctx context.Context, interval, idle time.Duration, onEvict func(Session)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := s.Sweep(idle)
			if err != nil {
				telemetry.Error("session.sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			for _, sess := range evicted {
				telemetry.Info("session.expired", map[string]any{"user_id": sess.UserID})
				if onEvict != nil {
					onEvict(sess)
				}
			}
		}
	}
}

func (s *Store) update(uid string, fn func(*Session) error) (*Session, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	next := raw.(*Session).clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.LastSeen = s.now()
	if err := txn.Insert(table, next); err != nil {
		return nil, err
	}
	txn.Commit()
	return next, nil
}
