package domain

import (
	"strings"
	"time"
)

type MessageStatus string

const (
	MessageSent     MessageStatus = "sent"
	MessageReceived MessageStatus = "received"
	MessageFailed   MessageStatus = "failed"
)

type Message struct {
	ID          string        `json:"id"`
	Channel     string        `json:"channel"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Subject     string        `json:"subject,omitempty"`
	Body        string        `json:"body,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	Status      MessageStatus `json:"status"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// Empty reports whether nothing is left to show: no body text and no
// attachments.
func (m *Message) Empty() bool {
	return strings.TrimSpace(m.Body) == "" && len(m.Attachments) == 0
}

// Clone returns a copy whose attachment slice can be mutated independently.
func (m *Message) Clone() Message {
	out := *m
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	return out
}
