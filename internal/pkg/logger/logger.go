package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a level name ("debug", "INFO", ...) to a Level.
// Unknown names default to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with secret redaction.
// Every entry is also appended to the in-memory ring buffer and fanned
// out to any active run captures.
type Logger struct {
	level  Level
	mu     sync.Mutex
	out    io.Writer
	buffer *Ring

	capMu    sync.RWMutex
	captures []*Capture
}

var defaultLogger = &Logger{
	level:  INFO,
	out:    os.Stderr,
	buffer: NewRing(DefaultRingCapacity),
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetOutput redirects the default logger's output (used in tests).
func SetOutput(w io.Writer) { defaultLogger.out = w }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	now := time.Now().UTC()
	msg = Redact(msg)

	entry := map[string]interface{}{
		"time":  now.Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	// Parse key-value pairs from fields
	var ctx map[string]string
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := Redact(fmt.Sprintf("%v", fields[i+1]))
		entry[key] = val
		if ctx == nil {
			ctx = make(map[string]string, len(fields)/2)
		}
		ctx[key] = val
	}

	// JSON output
	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()

	rec := Entry{Time: now, Level: levelNames[level], Message: msg, Fields: ctx}
	l.buffer.Append(rec)

	l.capMu.RLock()
	for _, c := range l.captures {
		c.append(rec)
	}
	l.capMu.RUnlock()
}

func (l *Logger) addCapture(c *Capture) {
	l.capMu.Lock()
	l.captures = append(l.captures, c)
	l.capMu.Unlock()
}

func (l *Logger) removeCapture(c *Capture) {
	l.capMu.Lock()
	for i, cur := range l.captures {
		if cur == c {
			l.captures = append(l.captures[:i], l.captures[i+1:]...)
			break
		}
	}
	l.capMu.Unlock()
}
