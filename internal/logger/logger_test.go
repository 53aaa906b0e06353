package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput("debug", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	WithRequestID(log, "req-1").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Contains(t, line, "ts")
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput("", "text", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	WithRequestID(log, "").Debug("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("loud", "text")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}
