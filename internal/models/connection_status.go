package models

// ConnectionTestStatus is the state of the connection test button
type ConnectionTestStatus string

const (
	ConnectionTestIdle      ConnectionTestStatus = "idle"
	ConnectionTestTesting   ConnectionTestStatus = "testing"
	ConnectionTestSucceeded ConnectionTestStatus = "succeeded"
	ConnectionTestFailed    ConnectionTestStatus = "failed"
)

// Test button icons
const (
	IconBolt    = "bolt"
	IconSpinner = "spinner"
	IconCheck   = "check"
	IconRemove  = "remove"
)

// Test button colors. An empty color means the default button color.
const (
	ColorNone  = ""
	ColorGreen = "green"
	ColorRed   = "red"
)

// StatusDisplay describes how the test button is drawn for a status
type StatusDisplay struct {
	Status  ConnectionTestStatus `json:"status"`
	Icon    string               `json:"icon"`
	Color   string               `json:"color,omitempty"`
	Loading bool                 `json:"loading"`
}

// Display maps the status to its button descriptor
func (s ConnectionTestStatus) Display() StatusDisplay {
	switch s {
	case ConnectionTestTesting:
		return StatusDisplay{Status: s, Icon: IconSpinner, Color: ColorNone, Loading: true}
	case ConnectionTestSucceeded:
		return StatusDisplay{Status: s, Icon: IconCheck, Color: ColorGreen}
	case ConnectionTestFailed:
		return StatusDisplay{Status: s, Icon: IconRemove, Color: ColorRed}
	default:
		return StatusDisplay{Status: ConnectionTestIdle, Icon: IconBolt, Color: ColorNone}
	}
}
