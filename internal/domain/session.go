package domain

import "time"

// StreamStatus is a position in the RTMP publish state machine. Status
// transitions only move forward: Idle -> Live -> Ended.
type StreamStatus string

const (
	StreamIdle StreamStatus = "IDLE"
	StreamLive StreamStatus = "LIVE"
	StreamEnded StreamStatus = "ENDED"
)

// StreamSession tracks one publish lifecycle for a stream. The media
// server's webhook identifies the stream by ID and authenticates the
// publish with a separate Token carried as a "?token=" query parameter on
// its callback, per spec.md §4.9 and §9's resolved token-transport
// question (stream id + token param, not stream_key-as-name).
type StreamSession struct {
	ID          string
	StreamKey   string
	Token       string
	UserID      string
	Status      StreamStatus
	StartedAt   *time.Time
	EndedAt     *time.Time
	ViewerCount int
}
