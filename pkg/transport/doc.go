// Package transport moves encoded packets between components.
//
// Two implementations share the Conn interface: an in-process Network of
// Endpoints used by tests and single-process setups, and a UDP transport
// that maps component addresses to datagram endpoints through a peer table.
// Both read the destination from the packet header, copy or write the buffer
// before returning, and route wildcard destinations to every matching peer.
//
// SendAndWait registers a reply matcher before sending; a matching inbound
// packet is handed to the waiting caller and never reaches the Handler.
package transport
