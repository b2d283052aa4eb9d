package notify

import (
	"encoding/json"
	"time"
)

// VerificationMessage is the job a mail worker consumes from the queue.
type VerificationMessage struct {
	Email       string    `json:"email"`
	Link        string    `json:"link"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewVerificationMessage(email, link string) *VerificationMessage {
	return &VerificationMessage{
		Email:       email,
		Link:        link,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *VerificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func VerificationMessageFromJSON(data []byte) (*VerificationMessage, error) {
	var msg VerificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
