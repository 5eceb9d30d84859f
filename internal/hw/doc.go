// Package hw abstracts digital GPIO behind a capability interface.
//
// Two implementations exist:
//   - ChipBinder: real pins through the kernel GPIO character device
//     (go-gpiocdev)
//   - MemBinder: in-memory pins for tests and simulated deployments
//
// Pin layout is fixed at entity-compile time and each pin has exactly one
// owner, so configuration failures are boot-time fatal and no runtime
// locking per pin is required beyond the binder's own bookkeeping.
package hw
