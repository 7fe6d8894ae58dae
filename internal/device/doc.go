// Package device defines the records captured by Gray Logic IR Learn.
//
// A Device is an appliance (fan, TV, ceiling light...) driven by an IR/RF
// controller. Each of its commands is tracked by a CommandRecord whose
// status follows a two-phase lifecycle:
//
//	capture ack ──▶ pending ──┬──▶ resolved (code present)
//	                          └──▶ failed   (deadline passed)
//
// The capture coordinator writes the first phase; the reconciliation poller
// is the only writer of the second.
//
// # Key Types
//
//   - Device: appliance record with its command map
//   - CommandRecord: per-command capture state and code payload
//   - EntityType: kind of entity synthesised for the device
//   - CodeKind: IR or RF
//
// # Thread Safety
//
// Values in this package are plain data. Sharing is managed by the store,
// which hands out deep copies.
package device
