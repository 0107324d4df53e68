package models

import "time"

// AlertLevel represents the severity of a console notification
type AlertLevel string

const (
	AlertLevelSuccess AlertLevel = "success"
	AlertLevelError   AlertLevel = "error"
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
)

// Alert is a user visible notification
type Alert struct {
	Level       AlertLevel `json:"level"`
	Message     string     `json:"message"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewAlert creates an alert stamped with the current time
func NewAlert(level AlertLevel, message, description string) Alert {
	return Alert{
		Level:       level,
		Message:     message,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}
