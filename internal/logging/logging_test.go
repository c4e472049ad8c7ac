package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustGetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	defer func() {
		SetOutput(os.Stderr)
		SetJSON(false)
	}()

	log := MustGetLogger("transport")
	log.WithField("part", 3).Info("part sent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transport", entry[ModuleField])
	assert.Equal(t, "part sent", entry["msg"])
	assert.EqualValues(t, 3, entry["part"])

	assert.Panics(t, func() { MustGetLogger("") })
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stderr)
		SetLevel(logrus.InfoLevel)
	}()

	log := MustGetLogger("controller")
	SetLevel(logrus.WarnLevel)
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestAddHook(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	hook := new(test.Hook)
	AddHook(hook)

	MustGetLogger("cli").WithField("addr", "localhost:514").Warn("syslog attached")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "syslog attached", entry.Message)
	assert.Equal(t, "cli", entry.Data[ModuleField])
}
