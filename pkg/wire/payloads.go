package wire

import "time"

// QueryHeartbeatPulse asks a component to prove it is alive
type QueryHeartbeatPulse struct{}

func (m *QueryHeartbeatPulse) Code() Code                     { return CodeQueryHeartbeatPulse }
func (m *QueryHeartbeatPulse) MarshalBinary() ([]byte, error) { return nil, nil }
func (m *QueryHeartbeatPulse) UnmarshalBinary(data []byte) error {
	return newReader(data).finish()
}

// ReportHeartbeatPulse is sent periodically so peers can detect our loss
type ReportHeartbeatPulse struct{}

func (m *ReportHeartbeatPulse) Code() Code                     { return CodeReportHeartbeatPulse }
func (m *ReportHeartbeatPulse) MarshalBinary() ([]byte, error) { return nil, nil }
func (m *ReportHeartbeatPulse) UnmarshalBinary(data []byte) error {
	return newReader(data).finish()
}

// QueryTime asks for the provider's clock; it is the usual payload template
// of a periodic time event
type QueryTime struct{}

func (m *QueryTime) Code() Code                     { return CodeQueryTime }
func (m *QueryTime) MarshalBinary() ([]byte, error) { return nil, nil }
func (m *QueryTime) UnmarshalBinary(data []byte) error {
	return newReader(data).finish()
}

// ReportTime answers QueryTime
type ReportTime struct {
	Time time.Time
}

func (m *ReportTime) Code() Code { return CodeReportTime }

func (m *ReportTime) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u64(uint64(m.Time.UnixNano()))
	return w.buf, nil
}

func (m *ReportTime) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	m.Time = time.Unix(0, int64(r.u64())).UTC()
	return r.finish()
}

// Opaque carries a message this process has no typed decoder for
type Opaque struct {
	MessageCode Code
	Body        []byte
}

func (m *Opaque) Code() Code { return m.MessageCode }

func (m *Opaque) MarshalBinary() ([]byte, error) {
	return m.Body, nil
}

func (m *Opaque) UnmarshalBinary(data []byte) error {
	m.Body = append(m.Body[:0], data...)
	return nil
}
