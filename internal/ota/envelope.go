package ota

import (
	"encoding/json"
	"fmt"
)

// Chunk is one message of a firmware transfer on the OTA topic.
//
// The first chunk (seq 0, offset 0) opens a session and declares the
// total image size; subsequent chunks stream bytes in order; the final
// chunk sets done and carries the verification token (minisign
// signature or hex checksum, depending on the configured verifier).
// Data is base64 in the JSON encoding.
type Chunk struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Offset    int64  `json:"offset"`
	TotalSize int64  `json:"total_size"`
	Data      []byte `json:"data,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Token     string `json:"token,omitempty"`
}

// ParseChunk decodes and validates one chunk envelope.
func ParseChunk(payload []byte) (Chunk, error) {
	var c Chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return Chunk{}, fmt.Errorf("decoding chunk envelope: %w", err)
	}
	if c.SessionID == "" {
		return Chunk{}, fmt.Errorf("chunk missing session_id")
	}
	if c.Seq < 0 || c.Offset < 0 {
		return Chunk{}, fmt.Errorf("chunk has negative seq or offset")
	}
	if c.TotalSize <= 0 {
		return Chunk{}, fmt.Errorf("chunk declares non-positive total_size")
	}
	return c, nil
}

// Status is published to <ota topic>/status as the session progresses.
//
// AttemptID is generated by the node per session so observers can
// correlate retries of the same sender-side session.
type Status struct {
	SessionID string `json:"session_id"`
	AttemptID string `json:"attempt_id"`
	State     string `json:"state"`
	Received  int64  `json:"received,omitempty"`
	TotalSize int64  `json:"total_size,omitempty"`
	Slot      string `json:"slot,omitempty"`
	Error     string `json:"error,omitempty"`
}
