// Package friends implements the friendship state machine: the
// canonical unordered Friendship relation, the ordered FriendRequest
// workflow that produces it, and the HTTP surface over both. A
// friendship is stored as exactly one row per unordered pair,
// canonically ordered (min(u,v), max(u,v)); requests are unique per
// ordered pair while pending.
package friends

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCannotFriendSelf   = errors.New("friends: cannot send a friend request to yourself")
	ErrAlreadyFriends     = errors.New("friends: already friends")
	ErrRequestExists      = errors.New("friends: a pending request already exists")
	ErrRequestNotFound    = errors.New("friends: request not found")
	ErrRequestNotPending  = errors.New("friends: request is not pending")
	ErrNotRecipient       = errors.New("friends: caller is not the request recipient")
	ErrFriendshipNotFound = errors.New("friends: friendship not found")
	ErrUserNotFound       = errors.New("friends: user not found")
)

// RequestStatus is a FriendRequest's state.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// FriendRequest is one directed request from sender to receiver.
type FriendRequest struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Status      RequestStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Friendship is the mutual-consent relation: exactly one row per
// unordered pair, canonically ordered (user_a < user_b).
type Friendship struct {
	UserA     int64
	UserB     int64
	CreatedAt time.Time
}

// Service is the friendship state machine, backed by Postgres via
// lib/pq.
type Service struct {
	db *sql.DB
}

// NewService constructs a friends Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func canonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Create opens a friend request: valid iff s != r, no
// friendship exists for {s,r}, and no pending request exists for (s->r)
// or (r->s). Rate limiting (10/hour/user) is enforced by the HTTP layer,
// not here.
func (s *Service) Create(senderID, receiverID int64) (*FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrCannotFriendSelf
	}

	userA, userB := canonicalPair(senderID, receiverID)
	var friendshipExists bool
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2)`,
		userA, userB,
	).Scan(&friendshipExists); err != nil {
		return nil, fmt.Errorf("friends: check friendship: %w", err)
	}
	if friendshipExists {
		return nil, ErrAlreadyFriends
	}

	var pendingExists bool
	if err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE status = $1
			  AND ((sender_id = $2 AND receiver_id = $3) OR (sender_id = $3 AND receiver_id = $2))
		)`, StatusPending, senderID, receiverID,
	).Scan(&pendingExists); err != nil {
		return nil, fmt.Errorf("friends: check pending request: %w", err)
	}
	if pendingExists {
		return nil, ErrRequestExists
	}

	req := &FriendRequest{SenderID: senderID, ReceiverID: receiverID, Status: StatusPending, CreatedAt: time.Now()}
	if err := s.db.QueryRow(`
		INSERT INTO friend_requests (sender_id, receiver_id, status, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		senderID, receiverID, StatusPending, req.CreatedAt,
	).Scan(&req.ID); err != nil {
		return nil, fmt.Errorf("friends: insert request: %w", err)
	}
	return req, nil
}

// Accept resolves a request: valid iff
// req.receiver_id == caller and req.status == pending. The friendship
// insert and request update happen in one transaction; a uniqueness
// violation on the friendship insert (a concurrent accept racing this
// one) rolls the whole transaction back so no inconsistent state is
// left behind.
func (s *Service) Accept(requestID, callerID int64) (*Friendship, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("friends: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var req FriendRequest
	if err := tx.QueryRow(
		`SELECT id, sender_id, receiver_id, status FROM friend_requests WHERE id = $1 FOR UPDATE`,
		requestID,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("friends: load request: %w", err)
	}
	if req.ReceiverID != callerID {
		return nil, ErrNotRecipient
	}
	if req.Status != StatusPending {
		return nil, ErrRequestNotPending
	}

	userA, userB := canonicalPair(req.SenderID, req.ReceiverID)
	now := time.Now()
	if _, err := tx.Exec(
		`INSERT INTO friendships (user_a, user_b, created_at) VALUES ($1, $2, $3)`,
		userA, userB, now,
	); err != nil {
		return nil, fmt.Errorf("friends: insert friendship: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE friend_requests SET status = $1, responded_at = $2 WHERE id = $3`,
		StatusAccepted, now, requestID,
	); err != nil {
		return nil, fmt.Errorf("friends: update request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("friends: commit accept: %w", err)
	}
	return &Friendship{UserA: userA, UserB: userB, CreatedAt: now}, nil
}

// Reject marks a pending request rejected. Rejection is not a block:
// the pair may be re-requested later.
func (s *Service) Reject(requestID, callerID int64) error {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE friend_requests SET status = $1, responded_at = $2
		 WHERE id = $3 AND receiver_id = $4 AND status = $5`,
		StatusRejected, now, requestID, callerID, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("friends: reject request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	var status RequestStatus
	var receiverID int64
	err = s.db.QueryRow(`SELECT status, receiver_id FROM friend_requests WHERE id = $1`, requestID).
		Scan(&status, &receiverID)
	if err == sql.ErrNoRows {
		return ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("friends: verify request: %w", err)
	}
	if receiverID != callerID {
		return ErrNotRecipient
	}
	return ErrRequestNotPending
}

// RemoveFriend deletes the
// Friendship row without creating a request or blocking future requests
// (rejection/removal is never a block - a pair may be re-requested).
func (s *Service) RemoveFriend(a, b int64) error {
	userA, userB := canonicalPair(a, b)
	result, err := s.db.Exec(`DELETE FROM friendships WHERE user_a = $1 AND user_b = $2`, userA, userB)
	if err != nil {
		return fmt.Errorf("friends: delete friendship: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// IsFriend implements relay.FriendshipChecker: the relay's send_message
// and send_file handlers call this before forwarding anything.
func (s *Service) IsFriend(a, b int64) (bool, error) {
	userA, userB := canonicalPair(a, b)
	var exists bool
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2)`,
		userA, userB,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("friends: check friendship: %w", err)
	}
	return exists, nil
}

// PendingRequest is one row of GET /friends/requests/pending.
type PendingRequest struct {
	ID        int64
	SenderID  int64
	Username  string
	CreatedAt time.Time
}

// PendingForReceiver lists incoming pending requests for a user.
func (s *Service) PendingForReceiver(receiverID int64) ([]PendingRequest, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.sender_id, u.username, r.created_at
		FROM friend_requests r
		JOIN users u ON u.id = r.sender_id
		WHERE r.receiver_id = $1 AND r.status = $2
		ORDER BY r.created_at DESC`,
		receiverID, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("friends: query pending requests: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var p PendingRequest
		if err := rows.Scan(&p.ID, &p.SenderID, &p.Username, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("friends: scan pending request: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FriendListEntry is one row of GET /friends/list.
type FriendListEntry struct {
	FriendID  int64
	Username  string
	CreatedAt time.Time
}

// ListFriends lists a user's accepted friends.
func (s *Service) ListFriends(userID int64) ([]FriendListEntry, error) {
	rows, err := s.db.Query(`
		SELECT CASE WHEN f.user_a = $1 THEN f.user_b ELSE f.user_a END AS friend_id,
		       u.username, f.created_at
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_a = $1 THEN f.user_b ELSE f.user_a END
		WHERE f.user_a = $1 OR f.user_b = $1
		ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("friends: query friend list: %w", err)
	}
	defer rows.Close()

	var out []FriendListEntry
	for rows.Next() {
		var f FriendListEntry
		if err := rows.Scan(&f.FriendID, &f.Username, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("friends: scan friend list entry: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Username resolves a user_id to its username, used to label
// notifications and pending-request listings.
func (s *Service) Username(userID int64) (string, error) {
	var username string
	err := s.db.QueryRow(`SELECT username FROM users WHERE id = $1`, userID).Scan(&username)
	if err == sql.ErrNoRows {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("friends: lookup username: %w", err)
	}
	return username, nil
}

// UserIDByUsername resolves a username to the opaque user_id used
// throughout the rest of the API, for POST /friends/request's
// receiver_username input.
func (s *Service) UserIDByUsername(username string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("friends: lookup username: %w", err)
	}
	return id, nil
}
