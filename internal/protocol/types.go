// Package protocol defines the JSON envelopes exchanged over the session
// WebSocket. Every frame is an object with a "type" field.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dkeye/OnAir/internal/domain"
)

// Client → server.
const (
	TypeSelectChannel          = "selectChannel"
	TypeDeselectChannel        = "deselectChannel"
	TypeSelectMultipleChannels = "selectMultipleChannels"
	TypeParticipantJoin        = "participantJoin"
	TypeParticipantLeave       = "participantLeave"
	TypeStartCountdown         = "startCountdown"
	TypeCountdownUpdate        = "countdownUpdate"
	TypeCancelCountdown        = "cancelCountdown"
	TypeSubmitMessage          = "submitMessage"
	TypeApproveMessage         = "approveMessage"
	TypeRejectMessage          = "rejectMessage"
	TypeGetMessages            = "getMessages"
	TypeEditorMessage          = "editorMessage"
	TypePairParticipants       = "pairParticipants"
	TypeUnpairParticipants     = "unpairParticipants"
	TypePing                   = "ping"
	TypeWhoAmI                 = "whoami"
)

// Server → client. countdownUpdate and whoami share their name with the
// client-side type.
const (
	TypeChannelSelected          = "channelSelected"
	TypeChannelDeselected        = "channelDeselected"
	TypeMultipleChannelsSelected = "multipleChannelsSelected"
	TypeCountdownStart           = "countdownStart"
	TypeCountdownCancelled       = "countdownCancelled"
	TypeParticipantJoined        = "participantJoined"
	TypeParticipantLeft          = "participantLeft"
	TypeNewMessageInQueue        = "newMessageInQueue"
	TypeMessageApproved          = "messageApproved"
	TypeMessageRejected          = "messageRejected"
	TypeEditorMessageReceived    = "editorMessageReceived"
	TypeParticipantPaired        = "participantPaired"
	TypeParticipantUnpaired      = "participantUnpaired"
	TypeMessageSubmitted         = "messageSubmitted"
	TypeMessagesData             = "messagesData"
	TypePong                     = "pong"
)

// Command is the decoded form of any client frame. Only the fields relevant
// to Type are populated.
type Command struct {
	Type         string             `json:"type"`
	ChannelID    domain.ChannelID   `json:"channelId,omitempty"`
	ChannelIDs   []domain.ChannelID `json:"channelIds,omitempty"`
	Seconds      *int               `json:"seconds,omitempty"`
	Name         string             `json:"name,omitempty"`
	Message      string             `json:"message,omitempty"`
	MessageID    int64              `json:"messageId,omitempty"`
	ParticipantA domain.ChannelID   `json:"participantA,omitempty"`
	ParticipantB domain.ChannelID   `json:"participantB,omitempty"`
}

// Event is the decoded form of any server frame, used by Go clients.
type Event struct {
	Type         string             `json:"type"`
	ChannelID    domain.ChannelID   `json:"channelId,omitempty"`
	ChannelIDs   []domain.ChannelID `json:"channelIds,omitempty"`
	Seconds      int                `json:"seconds,omitempty"`
	Message      *domain.Message    `json:"message,omitempty"`
	MessageID    int64              `json:"messageId,omitempty"`
	ParticipantA domain.ChannelID   `json:"participantA,omitempty"`
	ParticipantB domain.ChannelID   `json:"participantB,omitempty"`
	Success      bool               `json:"success,omitempty"`
	Error        string             `json:"error,omitempty"`
	Queue        []domain.Message   `json:"queue,omitempty"`
	Published    []domain.Message   `json:"published,omitempty"`
	SessionID    string             `json:"sessionId,omitempty"`
}

type Envelope struct {
	Type string `json:"type"`
}

type ChannelEvent struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type ChannelsEvent struct {
	Type       string             `json:"type"`
	ChannelIDs []domain.ChannelID `json:"channelIds"`
}

// CountdownEvent carries either ChannelID or ChannelIDs, never both.
type CountdownEvent struct {
	Type       string             `json:"type"`
	ChannelID  domain.ChannelID   `json:"channelId,omitempty"`
	ChannelIDs []domain.ChannelID `json:"channelIds,omitempty"`
	Seconds    int                `json:"seconds"`
}

type MessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageRejectedEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
}

type PairingEvent struct {
	Type         string           `json:"type"`
	ParticipantA domain.ChannelID `json:"participantA,omitempty"`
	ParticipantB domain.ChannelID `json:"participantB,omitempty"`
}

type SubmitResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MessagesData is the moderation snapshot. Both slices are always
// encoded as arrays, never null.
type MessagesData struct {
	Type      string           `json:"type"`
	Queue     []domain.Message `json:"queue"`
	Published []domain.Message `json:"published"`
}

type SessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Encode marshals v. All event types above are plain structs, so an error
// here is a programming mistake; callers log and drop.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeCommand accepts messageId both as a number and as a numeric string.
func DecodeCommand(data []byte) (Command, error) {
	var raw struct {
		Command
		MessageID json.RawMessage `json:"messageId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Command{}, err
	}
	cmd := raw.Command
	id, err := decodeID(raw.MessageID)
	if err != nil {
		return Command{}, fmt.Errorf("messageId: %w", err)
	}
	cmd.MessageID = id
	return cmd, nil
}

func decodeID(b json.RawMessage) (int64, error) {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	var id int64
	err := json.Unmarshal(b, &id)
	return id, err
}

// IntPtr is a convenience for optional numeric command fields.
func IntPtr(n int) *int { return &n }

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
