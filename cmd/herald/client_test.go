package main

import (
	"testing"

	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSetup(t *testing.T, args ...string) (wire.EventSetup, error) {
	t.Helper()
	flags := pflag.NewFlagSet("subscribe", pflag.ContinueOnError)
	addSetupFlags(flags)
	require.NoError(t, flags.Parse(args))
	return setupFromFlags(flags)
}

func TestSetupFromFlagsDefaults(t *testing.T) {
	setup, err := parseSetup(t)
	require.NoError(t, err)

	assert.Equal(t, wire.CodeQueryTime, setup.PayloadType)
	assert.Equal(t, types.EventKindPeriodic, setup.Kind)
	require.NotNil(t, setup.RequestedRate)
	assert.Equal(t, 1.0, *setup.RequestedRate)
	assert.Nil(t, setup.MinimumRate)
	assert.True(t, setup.Conditions.IsEmpty())
}

func TestSetupFromFlagsChangeBased(t *testing.T) {
	setup, err := parseSetup(t,
		"--kind", "every-change",
		"--payload", "0x2011",
		"--boundary", "inside-inclusive",
		"--limit-field", "2",
		"--lower", "1.5",
		"--upper", "3",
	)
	require.NoError(t, err)

	assert.Equal(t, types.EventKindEveryChange, setup.Kind)
	assert.Nil(t, setup.RequestedRate, "rate is only sent for periodic kinds unless given")

	c := setup.Conditions
	require.NotNil(t, c.Boundary)
	assert.Equal(t, types.BoundaryInsideInclusive, *c.Boundary)
	require.NotNil(t, c.LimitField)
	assert.Equal(t, uint8(2), *c.LimitField)
	require.NotNil(t, c.LowerLimit)
	assert.Equal(t, 1.5, *c.LowerLimit)
	require.NotNil(t, c.UpperLimit)
	assert.Equal(t, 3.0, *c.UpperLimit)
	assert.Nil(t, c.State)
}

func TestSetupFromFlagsRates(t *testing.T) {
	setup, err := parseSetup(t, "--rate", "20", "--min-rate", "5")
	require.NoError(t, err)

	require.NotNil(t, setup.RequestedRate)
	assert.Equal(t, 20.0, *setup.RequestedRate)
	require.NotNil(t, setup.MinimumRate)
	assert.Equal(t, 5.0, *setup.MinimumRate)
}

func TestSetupFromFlagsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown payload", args: []string{"--payload", "QueryWeather"}},
		{name: "unknown kind", args: []string{"--kind", "sometimes"}},
		{name: "unknown boundary", args: []string{"--boundary", "between"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSetup(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestReportViews(t *testing.T) {
	provider := types.MustParseAddress("1.1.1.1")
	views := reportViews(provider, []wire.EventReport{
		{PayloadType: wire.CodeQueryTime, Kind: types.EventKindPeriodic, EventID: 3},
		{
			PayloadType: wire.CodeQueryTime,
			Kind:        types.EventKindEveryChange,
			EventID:     4,
			Conditions:  types.Conditions{LowerLimit: types.Ptr(2.0)},
			Template:    []byte{},
		},
	})

	require.Len(t, views, 2)
	assert.Equal(t, "QueryTime/periodic/3@1.1.1.1", views[0].Key)
	assert.Nil(t, views[0].Conditions)
	assert.False(t, views[0].Template)

	assert.Equal(t, uint8(4), views[1].EventID)
	require.NotNil(t, views[1].Conditions)
	assert.Equal(t, 2.0, *views[1].Conditions.LowerLimit)
	assert.True(t, views[1].Template)
}
