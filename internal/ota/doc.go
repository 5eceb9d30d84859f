// Package ota applies firmware updates delivered over MQTT.
//
// Images arrive as ordered JSON chunks on the OTA topic and stream into
// the inactive partition slot. The transfer is transactional: the
// running image is never written, verification (minisign signature or
// sha256 checksum) happens before the slot is promoted, and any failure
// leaves the active slot pointer untouched so the device always boots a
// known-good image. A stalled transfer is cancelled by a chunk timeout
// so a half-written slot never lingers.
package ota
