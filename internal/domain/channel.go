package domain

import "strings"

// ChannelID identifies a live feed as assigned by the ingest gateway.
type ChannelID string

type SelectionMode string

const (
	SelectionNone   SelectionMode = "none"
	SelectionSingle SelectionMode = "single"
	SelectionMulti  SelectionMode = "multi"
)

// Selection is the on-air state. Channel is set only in single mode,
// Channels only in multi mode.
type Selection struct {
	Mode     SelectionMode `json:"mode"`
	Channel  ChannelID     `json:"channelId,omitempty"`
	Channels []ChannelID   `json:"channelIds,omitempty"`
}

// NormalizeChannelIDs trims ids, drops empty ones and removes duplicates
// keeping the first occurrence.
func NormalizeChannelIDs(ids []ChannelID) []ChannelID {
	out := make([]ChannelID, 0, len(ids))
	seen := make(map[ChannelID]struct{}, len(ids))
	for _, id := range ids {
		id = ChannelID(strings.TrimSpace(string(id)))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
