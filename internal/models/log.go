package models

// LogLevel is the severity attached to a streamed ETL log line.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogTimestampLayout is the display format applied to log lines that arrive
// without a timestamp of their own.
const LogTimestampLayout = "15:04:05"

// LogEntry represents one line of operational log pushed by the ETL engine.
// Timestamp is kept as a display string; the engine may send any format.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}
