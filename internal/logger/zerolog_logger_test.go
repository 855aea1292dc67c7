package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "scheduler")
	l.Infof("booked %s", "room-a")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "booked room-a", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("nothing")
	l.Debugw("nothing", nil)
}
