package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorEdge records a binary sensor level change.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - entityID: The sensor's unique identifier (e.g., "hall_motion")
//   - level: The new level (true = ON)
func (c *Client) WriteSensorEdge(entityID string, level bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if level {
		value = 1
	}

	point := write.NewPoint(
		"sensor_edges",
		map[string]string{
			"entity_id": entityID,
		},
		map[string]interface{}{
			"level": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlarmTransition records an alarm state transition.
//
// Parameters:
//   - from, to: The HA state strings on either side of the transition
//   - event: What drove it (command name or "SENSOR_TRIP")
func (c *Client) WriteAlarmTransition(from, to, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alarm_transitions",
		map[string]string{
			"from":  from,
			"to":    to,
			"event": event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteUpdateResult records the outcome of a firmware update attempt.
//
// Parameters:
//   - sessionID: The sender's session identifier
//   - success: Whether the image verified and was promoted
//   - bytes: Bytes received before completion or failure
func (c *Client) WriteUpdateResult(sessionID string, success bool, bytes int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"firmware_updates",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"success": success,
			"bytes":   bytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
