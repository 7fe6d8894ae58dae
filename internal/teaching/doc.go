// Package teaching is the client for the external teaching service: the
// component that puts a controller into learning mode and later files the
// decoded code in its own storage.
//
// Directives are published on graylogic/irlearn/command/{controller} and
// acknowledged on graylogic/irlearn/ack/{controller}. An acknowledgement only
// means the controller received the signal; the code itself shows up in the
// learned-code source some time later.
package teaching
