// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLen = 36
	MaxTextLen = 500

	ModeratorName = "Moderator"
)

var (
	ErrNameEmpty   = errors.New("name is required")
	ErrTextEmpty   = errors.New("message is required")
	ErrNameTooLong = errors.New("name too long")
	ErrTextTooLong = errors.New("message too long")
)

type MessageStatus string

const (
	MessagePending  MessageStatus = "pending"
	MessageApproved MessageStatus = "approved"
	MessageRejected MessageStatus = "rejected"
)

type Message struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Text        string        `json:"text"`
	SubmittedAt time.Time     `json:"submittedAt"`
	Status      MessageStatus `json:"status"`
}

// NewMessage trims and validates a participant submission. The result is pending.
func NewMessage(id int64, name, text string, at time.Time) (*Message, error) {
	name = strings.TrimSpace(name)
	text = strings.TrimSpace(text)
	if name == "" {
		return nil, ErrNameEmpty
	}
	if text == "" {
		return nil, ErrTextEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	if utf8.RuneCountInString(text) > MaxTextLen {
		return nil, ErrTextTooLong
	}
	return &Message{
		ID:          id,
		Name:        name,
		Text:        text,
		SubmittedAt: at,
		Status:      MessagePending,
	}, nil
}
