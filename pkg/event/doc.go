// Package event defines the Event entity, its index Key, and the conversions
// between an Event and the request shapes of the lifecycle protocol.
//
// Equivalence against a new create request is decided by
// MatchesCreateRequest, which compares every optional field for presence
// first and value second, using Tolerance for numbers.
package event
