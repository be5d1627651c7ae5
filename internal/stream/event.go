package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// Event types carried in the envelope's type field.
const (
	EventLog         = "log"
	EventStatus      = "status"
	EventStatsUpdate = "stats_update"
)

// ErrMalformedEvent wraps every payload decoding failure.
var ErrMalformedEvent = errors.New("malformed stream event")

// Envelope is the outer shape of every stream message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// logPayload is the wire form of a log event; every field is optional.
type logPayload struct {
	Timestamp *string `json:"timestamp"`
	Level     *string `json:"level"`
	Message   *string `json:"message"`
}

// DecodeEnvelope parses one raw message.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return env, nil
}

// DecodeLog builds a LogEntry from a log event's data. Missing or empty fields
// default to the arrival time, level info, and the raw payload text as the
// message.
// Data that is not an object becomes the message as-is.
func DecodeLog(data json.RawMessage, arrived time.Time) models.LogEntry {
	entry := models.LogEntry{
		Timestamp: arrived.Format(models.LogTimestampLayout),
		Level:     models.LogLevelInfo,
		Message:   string(data),
	}

	var p logPayload
	if err := json.Unmarshal(data, &p); err != nil {
		var text string
		if json.Unmarshal(data, &text) == nil {
			entry.Message = text
		}
		return entry
	}

	if p.Timestamp != nil && *p.Timestamp != "" {
		entry.Timestamp = *p.Timestamp
	}
	if p.Level != nil && *p.Level != "" {
		entry.Level = models.LogLevel(*p.Level)
	}
	if p.Message != nil && *p.Message != "" {
		entry.Message = *p.Message
	}
	return entry
}

// DecodeStatus parses a status or stats_update event's data.
func DecodeStatus(data json.RawMessage) (models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	if len(data) == 0 || string(data) == "null" {
		return snap, fmt.Errorf("%w: status event without data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("%w: status data: %v", ErrMalformedEvent, err)
	}
	return snap, nil
}
