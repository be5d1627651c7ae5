package monitor

import "time"

// NoticeLevel is the severity of an operator notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short, non-blocking message shown to the operator after a
// command. Only the latest notice is kept.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
	At    time.Time   `json:"at"`
}

// Expired reports whether the notice is older than ttl at now.
func (n *Notice) Expired(now time.Time, ttl time.Duration) bool {
	return n == nil || now.Sub(n.At) > ttl
}

func (m *Monitor) setNotice(level NoticeLevel, text string) {
	m.mu.Lock()
	m.notice = &Notice{Level: level, Text: text, At: time.Now()}
	m.mu.Unlock()
	m.changed()
}

// Notice returns the latest notice, nil when none was raised.
func (m *Monitor) Notice() *Notice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notice
}
