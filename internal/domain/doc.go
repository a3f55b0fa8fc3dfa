// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (event.go, poll.go, user.go, errors.go, etc.) hold the shared
// types and the contracts between the app layer and its adapters. No implementation
// code beyond value helpers and the event wire codec.
// Interfaces live here so adapters (mongo, redis, broadcast) never import each other.
package domain
