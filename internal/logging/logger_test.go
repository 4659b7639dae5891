package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestComponentLoggerRespectsEnabledLevels(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	logger := NewComponentLogger(ComponentLoggerConfig{
		ComponentName: "TEST",
		Color:         color.FgRed,
		EnabledLevels: []LogLevel{INFO, ERROR},
	})

	logger.Info("hello %s", "world")
	out := buf.String()
	assert.Contains(t, out, "[TEST]")
	assert.Contains(t, out, "hello world")

	buf.Reset()
	logger.Debug("should not appear")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.Error("boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestEnabledLevelNamesSorted(t *testing.T) {
	logger := NewComponentLogger(ComponentLoggerConfig{
		ComponentName: "X",
		EnabledLevels: AllLevels(),
	})
	names := logger.EnabledLevelNames()
	assert.Equal(t, []string{"DEBUG", "ERROR", "INFO", "WARN"}, names)
}
