package core

// SessionID identifies one connection. A reconnecting client gets a new one.
type SessionID string

// PublishResult reports delivery stats/backpressure to the session loop.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}
