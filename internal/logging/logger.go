// Package logging provides the component-scoped, color-tagged logger used
// across the runtime, grounded on the teacher's ComponentLogger shape
// (internal/utils/logger_test.go in cklxx-elephant.ai): a named logger with
// a configurable, per-component set of enabled levels.
package logging

import (
	"fmt"
	"log"
	"sort"

	"github.com/fatih/color"
)

// LogLevel orders the severities a ComponentLogger can gate on.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ComponentLoggerConfig configures a ComponentLogger.
type ComponentLoggerConfig struct {
	ComponentName string
	Color         color.Attribute
	EnabledLevels []LogLevel
}

// ComponentLogger is a minimal, dependency-light logger that tags every
// line with a colorized component name. It satisfies async.PanicLogger.
type ComponentLogger struct {
	name    string
	color   *color.Color
	enabled map[LogLevel]bool
}

// NewComponentLogger builds a logger for one subsystem (e.g. "scheduler",
// "registry", "gate"). Levels not listed in EnabledLevels are dropped
// without formatting their arguments.
func NewComponentLogger(cfg ComponentLoggerConfig) *ComponentLogger {
	enabled := make(map[LogLevel]bool, len(cfg.EnabledLevels))
	for _, lvl := range cfg.EnabledLevels {
		enabled[lvl] = true
	}
	attr := cfg.Color
	if attr == 0 {
		attr = color.FgCyan
	}
	return &ComponentLogger{
		name:    cfg.ComponentName,
		color:   color.New(attr),
		enabled: enabled,
	}
}

// DefaultLevels returns the common INFO/WARN/ERROR trio, leaving DEBUG off
// unless a caller opts in explicitly.
func DefaultLevels() []LogLevel {
	return []LogLevel{INFO, WARN, ERROR}
}

// AllLevels returns every level, used by tests and verbose CLI modes.
func AllLevels() []LogLevel {
	return []LogLevel{DEBUG, INFO, WARN, ERROR}
}

func (c *ComponentLogger) log(level LogLevel, format string, args ...interface{}) {
	if !c.enabled[level] {
		return
	}
	tag := c.color.Sprintf("[%s]", c.name)
	msg := fmt.Sprintf(format, args...)
	log.Printf("%s %s %s", tag, level, msg)
}

func (c *ComponentLogger) Debug(format string, args ...interface{}) { c.log(DEBUG, format, args...) }
func (c *ComponentLogger) Info(format string, args ...interface{})  { c.log(INFO, format, args...) }
func (c *ComponentLogger) Warn(format string, args ...interface{})  { c.log(WARN, format, args...) }

// Error satisfies async.PanicLogger as well as the level-method quartet.
func (c *ComponentLogger) Error(format string, args ...interface{}) { c.log(ERROR, format, args...) }

// EnabledLevelNames returns the logger's enabled level names sorted alphabetically,
// useful for config dumps and diagnostics endpoints.
func (c *ComponentLogger) EnabledLevelNames() []string {
	names := make([]string, 0, len(c.enabled))
	for lvl, on := range c.enabled {
		if on {
			names = append(names, lvl.String())
		}
	}
	sort.Strings(names)
	return names
}
