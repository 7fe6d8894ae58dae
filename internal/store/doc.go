// Package store persists devices and their command records to a single JSON
// snapshot file with a ".backup" sibling.
//
// Every write goes through a load-modify-save cycle serialised by one mutex.
// Saving first copies the current primary to the backup, then replaces the
// primary atomically (temp file, fsync, rename, directory fsync). Loading
// validates the primary against an embedded JSON Schema; if the primary is
// missing or invalid the backup is validated and promoted in its place.
//
// Usage:
//
//	st, err := store.Open(store.Config{Path: "/var/lib/irlearn/devices.json", CreateIfMissing: true})
//	if err != nil {
//	    return err
//	}
//	rec, err := st.PutPendingCommand(ctx, devID, "fan_off", device.CodeKindIR, captureID, time.Now())
package store
