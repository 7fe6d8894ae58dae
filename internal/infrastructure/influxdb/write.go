package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCapture  = "irlearn_capture"
	MeasurementEmission = "irlearn_emission"
	MeasurementPass     = "irlearn_reconcile_pass"
)

// WriteCaptureOutcome records how a capture ended. outcome is one of
// resolved, failed or superseded; latency is zero when no code arrived.
func (c *Client) WriteCaptureOutcome(deviceID, command, outcome string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(captureOutcomePoint(c.site, deviceID, command, outcome, latency, time.Now()))
}

// WriteEmission records the result of one generation run.
func (c *Client) WriteEmission(succeeded, failed int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(emissionPoint(c.site, succeeded, failed, time.Now()))
}

// WriteReconcilePass records one reconciliation pass over pending captures.
func (c *Client) WriteReconcilePass(checked, resolved, failed int, took time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(passPoint(c.site, checked, resolved, failed, took, time.Now()))
}

func captureOutcomePoint(site, deviceID, command, outcome string, latency time.Duration, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"count": int64(1),
	}
	if latency > 0 {
		fields["latency_ms"] = latency.Milliseconds()
	}
	return write.NewPoint(
		MeasurementCapture,
		map[string]string{
			"site":      site,
			"device_id": deviceID,
			"command":   command,
			"outcome":   outcome,
		},
		fields,
		at,
	)
}

func emissionPoint(site string, succeeded, failed int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementEmission,
		map[string]string{"site": site},
		map[string]interface{}{
			"succeeded": int64(succeeded),
			"failed":    int64(failed),
		},
		at,
	)
}

func passPoint(site string, checked, resolved, failed int, took time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPass,
		map[string]string{"site": site},
		map[string]interface{}{
			"checked":     int64(checked),
			"resolved":    int64(resolved),
			"failed":      int64(failed),
			"duration_ms": took.Milliseconds(),
		},
		at,
	)
}
