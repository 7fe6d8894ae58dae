// Package control is the daemon's MQTT request/response surface.
//
// Requests arrive on graylogic/irlearn/request/{action} and carry a
// request_id. Each is handled on a bounded worker pool and answered on
// graylogic/irlearn/response/{request_id}:
//
//	→ graylogic/irlearn/request/capture
//	  {"request_id":"r1","device_id":"dev-…","command":"power","code_kind":"ir"}
//	← graylogic/irlearn/response/r1
//	  {"request_id":"r1","success":true,"data":{"status":"pending",…}}
//
// A capture response returns once the controller has accepted the learn
// directive. The code itself is picked up later by the reconciliation
// poller.
package control
