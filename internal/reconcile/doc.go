// Package reconcile resolves captures whose codes have not yet appeared in
// the external learned-code source.
//
// A capture is acknowledged by the teaching service before the decoded code
// is written, so the capture coordinator stores a pending record and hands
// the Poller a PendingReconciliation. The Poller is the only writer of the
// second phase: it moves a record from pending to resolved when the code
// shows up, or to failed when the entry's deadline passes.
//
// Passes are triggered by a fixed interval, by change notifications from
// the code source watcher, by CheckNow, and by a timer armed for the
// earliest deadline. All triggers feed the same pass function from a single
// goroutine, and a pass with nothing new to find changes nothing.
//
// Registering a second capture for the same (device, command) replaces the
// first. The store's capture ID guard makes sure the replaced capture can
// never write its result over the newer one.
package reconcile
