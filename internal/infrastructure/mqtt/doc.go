// Package mqtt provides the broker session for the alarm node.
//
// It wraps the Eclipse Paho client with:
//
//   - Availability lifecycle: a retained "online" birth message on every
//     (re)connect and a retained "offline" Last Will registered with the
//     broker, both on the configured availability topic.
//   - Automatic re-subscription: subscriptions are tracked and restored
//     after reconnection, and an on-connect callback lets callers republish
//     retained state and discovery documents.
//   - Handler safety: message handlers run with panic recovery so a
//     misbehaving payload cannot crash the process.
//
// The client is safe for concurrent use. Higher layers should serialize
// their own publishes (see the node package's mailbox) when per-topic
// ordering matters across goroutines.
package mqtt
