// Package discovery publishes Home Assistant MQTT discovery documents
// for the node's compiled entities.
//
// One retained JSON config per entity at
// <prefix>/<component>/<unique_id>/config. Payloads are deterministic so
// re-announcing after a reconnect is idempotent at the broker.
package discovery
