package relay

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/quantumshield/relay/internal/crypto"
	"github.com/quantumshield/relay/internal/envelope"
)

// MaxFileSize bounds send_file's underlying file bytes, matching the
// envelope codec's plaintext bound.
const MaxFileSize = envelope.MaxPlaintextSize

// Wire-size ceilings for the base64-encoded bundle fields. A message's
// ciphertext is base64(AES(plaintext)); a file's file_data is
// base64(AES(base64(file_bytes))), so the file ceiling carries two
// base64 expansions over MaxFileSize.
var (
	maxWireCiphertext = base64.StdEncoding.EncodedLen(envelope.MaxPlaintextSize)
	maxWireFileData   = base64.StdEncoding.EncodedLen(base64.StdEncoding.EncodedLen(MaxFileSize))
)

// HandleMessage dispatches one inbound WebSocket frame to the matching
// event handler. Unknown event types are logged and ignored.
func (s *Service) HandleMessage(client *Client, raw []byte) {
	var msg inboundEnvelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[Relay] malformed message from connection %s: %v", client.ConnID[:8], err)
		return
	}

	switch msg.Type {
	case "send_message":
		s.handleSendMessage(client, msg)
	case "send_file":
		s.handleSendFile(client, msg)
	default:
		log.Printf("[Relay] unknown event type %q from connection %s", msg.Type, client.ConnID[:8])
	}
}

// handleSendMessage runs the send_message pipeline in fixed order:
// sender match, envelope completeness, friendship, signature, then
// deliver-or-recipient_offline. It fails closed on the first failing
// check and never attempts a later step once one fails.
func (s *Service) handleSendMessage(client *Client, msg inboundEnvelope) {
	if msg.SenderID != client.UserID {
		s.sendError(client, "unauthorized_sender")
		return
	}

	if len(msg.Ciphertext) > maxWireCiphertext {
		s.sendError(client, "payload_too_large")
		return
	}

	env, ok := decodeEnvelope(msg.KEMCiphertext, msg.IV, msg.Ciphertext, msg.AuthTag, msg.Signature)
	if !ok || envelope.Validate(env) != nil {
		s.sendError(client, "incomplete_envelope")
		return
	}

	if !s.authorizeDelivery(client, msg.SenderID, msg.ReceiverID, env) {
		return
	}

	out := receiveMessage{
		Type:          "receive_message",
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		KEMCiphertext: msg.KEMCiphertext,
		IV:            msg.IV,
		Ciphertext:    msg.Ciphertext,
		AuthTag:       msg.AuthTag,
		Signature:     msg.Signature,
		Timestamp:     time.Now().UnixMilli(),
		ID:            uuid.NewString(),
	}

	if !s.deliverToRoom(msg.ReceiverID, out) {
		s.sendError(client, "recipient_offline")
		return
	}
	s.sendTo(client, ackMessage{Type: "message_sent", Success: true, MessageID: out.ID})
}

// handleSendFile is the send_file counterpart: identical authorization
// pipeline, renamed events, and a generated file_id.
func (s *Service) handleSendFile(client *Client, msg inboundEnvelope) {
	if msg.SenderID != client.UserID {
		s.sendFileError(client, "unauthorized_sender")
		return
	}

	if len(msg.FileData) > maxWireFileData {
		s.sendFileError(client, "payload_too_large")
		return
	}

	// send_file carries the AES-GCM ciphertext (base64, like every other
	// wire field) in file_data rather than a separate ciphertext field.
	env, ok := decodeEnvelope(msg.KEMCiphertext, msg.IV, msg.FileData, msg.AuthTag, msg.Signature)
	if !ok || envelope.Validate(env) != nil {
		s.sendFileError(client, "incomplete_envelope")
		return
	}

	if !s.authorizeFileDelivery(client, msg.SenderID, msg.ReceiverID, env) {
		return
	}

	out := receiveFile{
		Type:          "receive_file",
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		FileName:      msg.FileName,
		FileSize:      msg.FileSize,
		FileType:      msg.FileType,
		FileData:      msg.FileData,
		KEMCiphertext: msg.KEMCiphertext,
		IV:            msg.IV,
		AuthTag:       msg.AuthTag,
		Signature:     msg.Signature,
		FileID:        uuid.NewString(),
		Timestamp:     time.Now().UnixMilli(),
	}

	if !s.deliverToRoom(msg.ReceiverID, out) {
		s.sendFileError(client, "recipient_offline")
		return
	}
	s.sendTo(client, ackMessage{Type: "file_delivered", Success: true, MessageID: out.FileID})
}

// authorizeDelivery runs the friendship check and then the sender
// signature check, in that order.
func (s *Service) authorizeDelivery(client *Client, senderID, receiverID int64, env *envelope.Envelope) bool {
	isFriend, err := s.friends.IsFriend(senderID, receiverID)
	if err != nil {
		log.Printf("[Relay] friendship lookup failed for (%d,%d): %v", senderID, receiverID, err)
		s.sendError(client, "not_friend")
		return false
	}
	if !isFriend {
		s.sendError(client, "not_friend")
		return false
	}

	sigPK, err := s.keys.SigPublicKey(senderID)
	if err != nil {
		log.Printf("[Relay] signature key lookup failed for user %d: %v", senderID, err)
		s.sendError(client, "bad_signature")
		return false
	}

	payload := envelope.CanonicalPayload(env.Ciphertext, env.IV, env.Tag)
	verified, err := crypto.Verify(sigPK, payload, env.Signature)
	if err != nil || !verified {
		s.sendError(client, "bad_signature")
		return false
	}
	return true
}

func (s *Service) authorizeFileDelivery(client *Client, senderID, receiverID int64, env *envelope.Envelope) bool {
	isFriend, err := s.friends.IsFriend(senderID, receiverID)
	if err != nil {
		log.Printf("[Relay] friendship lookup failed for (%d,%d): %v", senderID, receiverID, err)
		s.sendFileError(client, "not_friend")
		return false
	}
	if !isFriend {
		s.sendFileError(client, "not_friend")
		return false
	}

	sigPK, err := s.keys.SigPublicKey(senderID)
	if err != nil {
		log.Printf("[Relay] signature key lookup failed for user %d: %v", senderID, err)
		s.sendFileError(client, "bad_signature")
		return false
	}

	payload := envelope.CanonicalPayload(env.Ciphertext, env.IV, env.Tag)
	verified, err := crypto.Verify(sigPK, payload, env.Signature)
	if err != nil || !verified {
		s.sendFileError(client, "bad_signature")
		return false
	}
	return true
}

func (s *Service) sendError(client *Client, code string) {
	s.sendTo(client, errorMessage{Type: "message_error", Error: code})
}

func (s *Service) sendFileError(client *Client, code string) {
	s.sendTo(client, errorMessage{Type: "file_error", Error: code})
}

// NotifyFriendRequest emits friend_request_received to the receiver's
// live connections after the HTTP surface creates a request. It is a
// best-effort notification, not authoritative - the receiver's
// pending-requests list (GET /friends/requests/pending) is the source
// of truth.
func (s *Service) NotifyFriendRequest(receiverID, requestID, senderID int64, senderUsername string, createdAt time.Time) {
	s.deliverToRoom(receiverID, friendRequestReceived{
		Type:      "friend_request_received",
		RequestID: requestID,
		SenderID:  senderID,
		Username:  senderUsername,
		CreatedAt: createdAt.UnixMilli(),
	})
}

// decodeEnvelope base64-decodes the wire fields into an envelope.Envelope
// and reports false if any field is missing or fails to decode. The
// ciphertext parameter is not itself checked for emptiness here (callers
// pass msg.Ciphertext or msg.FileData, and the two events differ in
// which field carries it); every caller MUST run envelope.Validate on
// the result before doing anything else, so an empty ciphertext is
// still rejected as incomplete_envelope before the friendship and
// signature steps.
func decodeEnvelope(kemCiphertext, iv, ciphertext, authTag, signature string) (*envelope.Envelope, bool) {
	if kemCiphertext == "" || iv == "" || authTag == "" || signature == "" {
		return nil, false
	}

	kemCt, err := base64.StdEncoding.DecodeString(kemCiphertext)
	if err != nil || len(kemCt) == 0 {
		return nil, false
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(ivBytes) == 0 {
		return nil, false
	}
	tag, err := base64.StdEncoding.DecodeString(authTag)
	if err != nil || len(tag) == 0 {
		return nil, false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) == 0 {
		return nil, false
	}

	env := &envelope.Envelope{
		KEMCiphertext: kemCt,
		IV:            ivBytes,
		Tag:           tag,
		Signature:     sig,
	}

	if ciphertext != "" {
		ct, err := base64.StdEncoding.DecodeString(ciphertext)
		if err != nil || len(ct) == 0 {
			return nil, false
		}
		env.Ciphertext = ct
	}

	return env, true
}
