// Package sensor polls binary sensor pins and publishes level changes.
//
// One fixed-cadence loop covers every binary_sensor entity. Publication
// is edge-triggered and retained; an optional debounce window filters
// contact chatter. Rising edges are fed to the alarm controller as
// sensor trips.
package sensor
