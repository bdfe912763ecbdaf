package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cuemby/herald/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { Logger = zerolog.Nop() })

	logger := WithPeer("transport", types.MustParseAddress("1.2.5.1"))
	logger.Info().Msg("peer learned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "transport", entry["component"])
	assert.Equal(t, "1.2.5.1", entry["peer"])
	assert.Equal(t, "peer learned", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	addrLogger := WithAddress(types.MustParseAddress("1.1.2.1"))
	addrLogger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	schedLogger := WithComponent("scheduler")
	schedLogger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}
