package relay

import "encoding/json"

func marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// inboundEnvelope carries the JSON field names used on the wire by
// send_message and send_file. Both share the same cryptographic
// fields; send_file adds file metadata.
type inboundEnvelope struct {
	Type          string `json:"type"`
	SenderID      int64  `json:"sender_id"`
	ReceiverID    int64  `json:"receiver_id"`
	KEMCiphertext string `json:"kem_ciphertext"`
	IV            string `json:"iv"`
	Ciphertext    string `json:"ciphertext"`
	AuthTag       string `json:"auth_tag"`
	Signature     string `json:"signature"`

	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

// receiveMessage is the S->C receive_message payload: the envelope plus
// delivery metadata.
type receiveMessage struct {
	Type          string `json:"type"`
	SenderID      int64  `json:"sender_id"`
	ReceiverID    int64  `json:"receiver_id"`
	KEMCiphertext string `json:"kem_ciphertext"`
	IV            string `json:"iv"`
	Ciphertext    string `json:"ciphertext"`
	AuthTag       string `json:"auth_tag"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	ID            string `json:"id"`
}

// receiveFile is the S->C receive_file payload.
type receiveFile struct {
	Type          string `json:"type"`
	SenderID      int64  `json:"sender_id"`
	ReceiverID    int64  `json:"receiver_id"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileType      string `json:"file_type"`
	FileData      string `json:"file_data"`
	KEMCiphertext string `json:"kem_ciphertext"`
	IV            string `json:"iv"`
	AuthTag       string `json:"auth_tag"`
	Signature     string `json:"signature"`
	FileID        string `json:"file_id"`
	Timestamp     int64  `json:"timestamp"`
}

type ackMessage struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// friendRequestReceived is the notification-only event emitted when a
// friend request is created via the HTTP surface.
type friendRequestReceived struct {
	Type       string `json:"type"`
	RequestID  int64  `json:"request_id"`
	SenderID   int64  `json:"sender_id"`
	Username   string `json:"username"`
	CreatedAt  int64  `json:"created_at"`
}
