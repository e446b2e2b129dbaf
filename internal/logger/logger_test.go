package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
)

func TestShouldNotHappen(t *testing.T) {
	var buf bytes.Buffer
	log := SetupWriter(&buf, "debug", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ShouldNotHappen(log, "save without grade id").Int("problem_id", 7).Msg("Cannot save problem state")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	assert.Equal(t, line["level"], "error")
	assert.Equal(t, line["should_not_happen"], true)
	assert.Equal(t, line["violation"], "save without grade id")
	assert.Equal(t, line["problem_id"], float64(7))
}

func TestSetupWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := SetupWriter(&buf, "loud", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Debug().Msg("hidden")
	assert.Equal(t, buf.Len(), 0)

	log.Info().Msg("shown")
	assert.NotEqual(t, buf.Len(), 0)
}
