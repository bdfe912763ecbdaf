/*
Package wire encodes the event lifecycle protocol.

Every frame starts with a fixed ten-byte header followed by the message body:

	+--------+-------------+--------+------------------+
	| code   | destination | source | body ...         |
	| uint16 | 4 bytes     | 4 bytes|                  |
	+--------+-------------+--------+------------------+

All integers are little-endian. The destination sits at a fixed offset so an
encoded frame can be re-addressed with PatchDestination without re-encoding
the body; fan-out relies on this.

Optional fields are announced by a one-byte presence vector at the start of
the body and written in presence-bit order. Periodic rates travel as a
uint16 scaled over [0, MaxPeriodicRate] Hz, so a decoded rate can differ from
the encoded one by up to MaxPeriodicRate/65535 (about 0.017 Hz).

Lifecycle messages:

	CreateEvent          subscriber -> provider
	UpdateEvent          subscriber -> provider
	CancelEvent          subscriber -> provider (or provider teardown)
	ConfirmEventRequest  provider -> subscriber
	RejectEventRequest   provider -> subscriber
	EventMessage         provider -> subscriber (deliver envelope)
	QueryEvents          introspector -> provider
	ReportEvents         provider -> introspector

ReportHeartbeatPulse, QueryTime and ReportTime are small helper messages used
for liveness and as a ready-made periodic payload.
*/
package wire
