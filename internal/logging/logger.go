package logging

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/linspirer/proxy/internal/assert"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// Fields captures structured context for JSON log entries.
// Include RequestID to correlate a log line with a proxied exchange.
type Fields struct {
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Action    string `json:"action,omitempty"`
	Email     string `json:"email,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Component string `json:"component,omitempty"`
	Error     string `json:"error,omitempty"`
}

type entry struct {
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"msg"`
	Fields
}

var (
	levelOnce sync.Once
	minLevel  = levelInfo
)

func init() {
	if err := assert.Check(log.Default() != nil, "default logger must not be nil"); err != nil {
		return
	}
	log.SetFlags(0)
}

// Debug logs a debug-level message with structured fields in JSON format.
// Respects LINSPIRER_LOG_LEVEL. Returns silently if msg is empty.
func Debug(msg string, fields Fields) {
	if err := assert.Check(msg != "", "log message must not be empty"); err != nil {
		return
	}
	logWithLevel("debug", msg, fields)
}

// Info logs an info-level message with structured fields in JSON format.
func Info(msg string, fields Fields) {
	if err := assert.Check(msg != "", "log message must not be empty"); err != nil {
		return
	}
	logWithLevel("info", msg, fields)
}

// Warn logs a warning-level message. Use for recoverable failures — decrypt,
// encrypt, and log-append errors all degrade to Warn rather than abort the
// exchange.
func Warn(msg string, fields Fields) {
	if err := assert.Check(msg != "", "log message must not be empty"); err != nil {
		return
	}
	logWithLevel("warn", msg, fields)
}

// Error logs an error-level message for failures that require attention but
// don't stop the service.
func Error(msg string, fields Fields) {
	if err := assert.Check(msg != "", "log message must not be empty"); err != nil {
		return
	}
	logWithLevel("error", msg, fields)
}

func logWithLevel(level string, msg string, fields Fields) {
	if !shouldLog(level) {
		return
	}
	out := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		log.Printf("{\"level\":\"error\",\"msg\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	log.Print(string(payload))
}

func shouldLog(level string) bool {
	levelOnce.Do(func() {
		envLevel := strings.ToLower(os.Getenv("LINSPIRER_LOG_LEVEL"))
		if envLevel == "" {
			envLevel = "info"
		}
		minLevel = levelValue(envLevel)
	})
	return levelValue(level) >= minLevel
}

func levelValue(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}
