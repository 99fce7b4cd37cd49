// Package relay implements the authenticated WebSocket event broker
// that forwards already-encrypted envelopes between friends and never
// persists them. Every inbound envelope runs the same fixed
// authorization pipeline before anything is emitted: sender match,
// envelope completeness, friendship, signature, then
// deliver-or-recipient_offline.
package relay

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one authenticated WebSocket connection. Multiple Clients
// can share a UserID (multi-device): reconnections and duplicate
// per-user connections are allowed and join the same logical room.
type Client struct {
	ConnID   string
	UserID   int64
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Room is room(user_id): the set of live connections for one user.
type Room struct {
	UserID  int64
	Clients map[string]*Client
	mu      sync.RWMutex
}

func (r *Room) addClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clients[c.ConnID] = c
}

func (r *Room) removeClient(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Clients, connID)
}

func (r *Room) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, c := range r.Clients {
		clients = append(clients, c)
	}
	return clients
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// FriendshipChecker is the ACL boundary the relay consults before
// forwarding anything between two users.
type FriendshipChecker interface {
	IsFriend(senderID, receiverID int64) (bool, error)
}

// KeyLookup resolves a user's registered signature public key for
// sender-signature verification. The relay never trusts a
// client-supplied public key for this purpose.
type KeyLookup interface {
	SigPublicKey(userID int64) ([]byte, error)
}

// Service is the relay's connection/room registry and event dispatcher.
// The registry is its only piece of shared mutable server-side state
// besides rate-limiter counters.
type Service struct {
	rooms   map[int64]*Room
	roomsMu sync.RWMutex

	friends FriendshipChecker
	keys    KeyLookup
}

// NewService constructs a relay Service.
func NewService(friends FriendshipChecker, keys KeyLookup) *Service {
	return &Service{
		rooms:   make(map[int64]*Room),
		friends: friends,
		keys:    keys,
	}
}

func (s *Service) getOrCreateRoom(userID int64) *Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	if room, ok := s.rooms[userID]; ok {
		return room
	}
	room := &Room{UserID: userID, Clients: make(map[string]*Client)}
	s.rooms[userID] = room
	return room
}

// AddClient tags the connection with (user_id, username) and adds it to
// room(user_id). The caller is responsible for having already completed
// handshake authentication.
func (s *Service) AddClient(userID int64, username string, conn *websocket.Conn) *Client {
	room := s.getOrCreateRoom(userID)

	client := &Client{
		ConnID:   uuid.NewString(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, 256),
	}
	room.addClient(client)
	log.Printf("[Relay] connection %s joined room(%d), %d live connections", client.ConnID[:8], userID, room.size())
	return client
}

// RemoveClient removes a disconnected connection so room membership
// reflects only live connections.
func (s *Service) RemoveClient(client *Client) {
	s.roomsMu.RLock()
	room, ok := s.rooms[client.UserID]
	s.roomsMu.RUnlock()
	if !ok {
		return
	}

	room.removeClient(client.ConnID)
	close(client.Send)

	if room.size() == 0 {
		s.roomsMu.Lock()
		if r, ok := s.rooms[client.UserID]; ok && r.size() == 0 {
			delete(s.rooms, client.UserID)
		}
		s.roomsMu.Unlock()
	}
	log.Printf("[Relay] connection %s left room(%d)", client.ConnID[:8], client.UserID)
}

// deliverToRoom marshals msg once and fans it out to every live
// connection in room(userID), non-blocking and fire-and-forget. It
// reports whether the room had at least one member at the moment of the
// check, which is what decides delivered vs recipient_offline.
func (s *Service) deliverToRoom(userID int64, msg interface{}) bool {
	s.roomsMu.RLock()
	room, ok := s.rooms[userID]
	s.roomsMu.RUnlock()
	if !ok {
		return false
	}

	clients := room.snapshot()
	if len(clients) == 0 {
		return false
	}

	data, err := marshal(msg)
	if err != nil {
		log.Printf("[Relay] failed to marshal outbound message: %v", err)
		return false
	}

	for _, c := range clients {
		select {
		case c.Send <- data:
		default:
			log.Printf("[Relay] send channel full for connection %s, dropping", c.ConnID[:8])
		}
	}
	return true
}

func (s *Service) sendTo(client *Client, msg interface{}) {
	data, err := marshal(msg)
	if err != nil {
		log.Printf("[Relay] failed to marshal message to %s: %v", client.ConnID[:8], err)
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Printf("[Relay] send channel full for connection %s, dropping", client.ConnID[:8])
	}
}
