// Package app provides the application service layer.
//
// Orchestrates use cases: login, poll creation, voting, status toggles and vote resets.
// Every mutation that changes what viewers see is followed by an event on the
// real-time fanout. Depends on domain interfaces, not concrete implementations.
package app
