package wire

import (
	"testing"
	"time"

	"github.com/cuemby/herald/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	provider   = types.MustParseAddress("1.1.2.1")
	subscriber = types.MustParseAddress("1.2.5.1")
)

func TestCreateEventPresenceSurvivesEncoding(t *testing.T) {
	req := &CreateEvent{
		RequestID: 7,
		EventSetup: EventSetup{
			PayloadType: CodeQueryTime,
			Kind:        types.EventKindFirstChangeBoundaries,
			Conditions: types.Conditions{
				Boundary:   types.Ptr(types.BoundaryOutsideExclusive),
				LowerLimit: types.Ptr(-2.5),
				State:      types.Ptr(0.0),
			},
			RequestedRate: types.Ptr(10.0),
			Template:      []byte{},
		},
	}

	buf, err := Marshal(provider, subscriber, req)
	require.NoError(t, err)

	pkt, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, CodeCreateEvent, pkt.Code)
	assert.Equal(t, provider, pkt.Destination)
	assert.Equal(t, subscriber, pkt.Source)

	msg, err := pkt.Decode(DefaultRegistry)
	require.NoError(t, err)
	got, ok := msg.(*CreateEvent)
	require.True(t, ok)

	assert.Equal(t, uint8(7), got.RequestID)
	assert.Equal(t, types.EventKindFirstChangeBoundaries, got.Kind)
	require.NotNil(t, got.Conditions.Boundary)
	assert.Equal(t, types.BoundaryOutsideExclusive, *got.Conditions.Boundary)
	assert.Nil(t, got.Conditions.LimitField)
	assert.Nil(t, got.Conditions.UpperLimit)
	require.NotNil(t, got.Conditions.State)
	assert.Equal(t, 0.0, *got.Conditions.State, "zero state is present, not absent")
	assert.Nil(t, got.MinimumRate)
	require.NotNil(t, got.RequestedRate)
	assert.InDelta(t, 10.0, *got.RequestedRate, 0.02)
	assert.NotNil(t, got.Template, "empty template is present")
	assert.Len(t, got.Template, 0)
}

func TestRateScaling(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 0, want: 0},
		{in: 1, want: 1},
		{in: 33.3, want: 33.3},
		{in: MaxPeriodicRate, want: MaxPeriodicRate},
		{in: 5000, want: MaxPeriodicRate},
		{in: -1, want: 0},
	}

	for _, tt := range tests {
		got := unscaleRate(scaleRate(tt.in))
		assert.InDelta(t, tt.want, got, MaxPeriodicRate/65535, "rate %v", tt.in)
	}
}

func TestPatchDestination(t *testing.T) {
	msg := &EventMessage{EventID: 3, PayloadType: CodeQueryTime, Sequence: 9, Payload: []byte{1, 2, 3}}
	buf, err := Marshal(types.Address{}, provider, msg)
	require.NoError(t, err)
	body := append([]byte(nil), buf[HeaderSize:]...)

	for _, dst := range []types.Address{subscriber, types.MustParseAddress("2.1.1.1")} {
		require.NoError(t, PatchDestination(buf, dst))

		got, err := PeekDestination(buf)
		require.NoError(t, err)
		assert.Equal(t, dst, got)

		src, err := PeekSource(buf)
		require.NoError(t, err)
		assert.Equal(t, provider, src)
		assert.Equal(t, body, buf[HeaderSize:], "body untouched")
	}

	assert.ErrorIs(t, PatchDestination([]byte{1, 2}, subscriber), ErrShortBuffer)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Unmarshal([]byte{0xF0, 0x01})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = DefaultRegistry.Decode(Code(0x9999), nil)
	assert.ErrorIs(t, err, ErrUnknownCode)

	// presence vector claims an event id that is not there
	_, err = DefaultRegistry.Decode(CodeCancelEvent, []byte{pvCancelEventID, 1})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = DefaultRegistry.Decode(CodeConfirmEventRequest, []byte{1, 0xF0, 0x01, 2, 99})
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestCancelEventOptionalFields(t *testing.T) {
	tests := []struct {
		name string
		msg  CancelEvent
	}{
		{name: "neither", msg: CancelEvent{RequestID: 1}},
		{name: "payload type only", msg: CancelEvent{RequestID: 2, PayloadType: types.Ptr(Code(5))}},
		{name: "event id only", msg: CancelEvent{RequestID: 3, EventID: types.Ptr(uint8(0))}},
		{name: "both", msg: CancelEvent{RequestID: 4, PayloadType: types.Ptr(Code(5)), EventID: types.Ptr(uint8(1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.msg.MarshalBinary()
			require.NoError(t, err)

			var got CancelEvent
			require.NoError(t, got.UnmarshalBinary(body))
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestReportEventsMixedPresence(t *testing.T) {
	report := &ReportEvents{Events: []EventReport{
		{PayloadType: CodeQueryTime, Kind: types.EventKindPeriodic, EventID: 0},
		{
			PayloadType: Code(0x2400),
			Kind:        types.EventKindEveryChange,
			Conditions: types.Conditions{
				LimitField: types.Ptr(uint8(3)),
				UpperLimit: types.Ptr(42.0),
			},
			EventID:  4,
			Template: []byte{0xAA},
		},
	}}

	body, err := report.MarshalBinary()
	require.NoError(t, err)

	var got ReportEvents
	require.NoError(t, got.UnmarshalBinary(body))
	assert.Equal(t, report.Events, got.Events)

	tooMany := &ReportEvents{Events: make([]EventReport, 256)}
	_, err = tooMany.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestEmbeddedPayload(t *testing.T) {
	now := time.Unix(1700000000, 42).UTC()
	buf, err := EncodeEmbedded(&ReportTime{Time: now})
	require.NoError(t, err)

	msg, err := DecodeEmbedded(buf, DefaultRegistry)
	require.NoError(t, err)
	rt, ok := msg.(*ReportTime)
	require.True(t, ok)
	assert.True(t, now.Equal(rt.Time))
}

func TestTemplateLazyForms(t *testing.T) {
	fromMsg := TemplateFromMessage(&QueryTime{})
	raw, err := fromMsg.Bytes()
	require.NoError(t, err)
	assert.NotNil(t, raw)

	fromRaw := TemplateFromBytes(CodeQueryTime, nil)
	msg, err := fromRaw.Message(DefaultRegistry)
	require.NoError(t, err)
	assert.IsType(t, &QueryTime{}, msg)

	assert.True(t, fromMsg.Equal(fromRaw))
	assert.False(t, fromRaw.Equal(TemplateFromBytes(CodeQueryTime, []byte{1})))
	assert.False(t, fromRaw.Equal(nil))
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		in      string
		want    Code
		wantErr bool
	}{
		{in: "QueryTime", want: CodeQueryTime},
		{in: "querytime", want: CodeQueryTime},
		{in: "0x2011", want: CodeQueryTime},
		{in: "8209", want: CodeQueryTime},
		{in: "0x7777", want: Code(0x7777)},
		{in: "NoSuchMessage", wantErr: true},
		{in: "0x10000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
