// Package influxdb exports capture pipeline metrics to InfluxDB v2.
//
// Points are written through the non-blocking batched write API:
//   - irlearn_capture: one point per finished capture, tagged with outcome
//   - irlearn_reconcile_pass: one point per reconciliation pass
//   - irlearn_emission: one point per entity generation run
//
// Write errors are delivered asynchronously to the SetOnError callback.
// When InfluxDB is disabled Connect returns ErrDisabled and callers run
// without metrics.
package influxdb
