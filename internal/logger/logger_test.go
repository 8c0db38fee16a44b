package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("not-a-level").GetLevel())
}

func TestNewWithOutput_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)
	log.WithField("card_id", "c-1").Info("card issued")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "card issued", entry["msg"])
	assert.Equal(t, "c-1", entry["card_id"])
}
