package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Code identifies a message type on the wire
type Code uint16

const (
	CodeCreateEvent         Code = 0x01F0
	CodeUpdateEvent         Code = 0x01F1
	CodeCancelEvent         Code = 0x01F2
	CodeConfirmEventRequest Code = 0x01F3
	CodeRejectEventRequest  Code = 0x01F4

	CodeQueryTime           Code = 0x2011
	CodeQueryEvents         Code = 0x21F0
	CodeQueryHeartbeatPulse Code = 0x2202

	CodeReportTime           Code = 0x4011
	CodeReportEvents         Code = 0x41F0
	CodeEvent                Code = 0x41F1
	CodeReportHeartbeatPulse Code = 0x4202
)

var codeNames = map[Code]string{
	CodeCreateEvent:          "CreateEvent",
	CodeUpdateEvent:          "UpdateEvent",
	CodeCancelEvent:          "CancelEvent",
	CodeConfirmEventRequest:  "ConfirmEventRequest",
	CodeRejectEventRequest:   "RejectEventRequest",
	CodeQueryTime:            "QueryTime",
	CodeQueryEvents:          "QueryEvents",
	CodeQueryHeartbeatPulse:  "QueryHeartbeatPulse",
	CodeReportTime:           "ReportTime",
	CodeReportEvents:         "ReportEvents",
	CodeEvent:                "Event",
	CodeReportHeartbeatPulse: "ReportHeartbeatPulse",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}

// ParseCode accepts a message name such as QueryTime or a numeric code such
// as 0x2011
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	for c, name := range codeNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown message code %q", s)
	}
	return Code(n), nil
}

// ResponseCode is the reason carried by a RejectEventRequest
type ResponseCode uint8

const (
	ResponsePeriodicNotSupported    ResponseCode = 1
	ResponseChangeBasedNotSupported ResponseCode = 2
	ResponseConnectionRefused       ResponseCode = 3
	ResponseInvalidEventSetup       ResponseCode = 4
	ResponseMessageNotSupported     ResponseCode = 5
	ResponseInvalidEventID          ResponseCode = 6
)

var responseNames = map[ResponseCode]string{
	ResponsePeriodicNotSupported:    "periodic events not supported",
	ResponseChangeBasedNotSupported: "change-based events not supported",
	ResponseConnectionRefused:       "connection refused",
	ResponseInvalidEventSetup:       "invalid event setup",
	ResponseMessageNotSupported:     "message not supported",
	ResponseInvalidEventID:          "invalid event id for update",
}

func (r ResponseCode) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}
	return fmt.Sprintf("response(%d)", uint8(r))
}
