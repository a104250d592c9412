package clausius

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inventory is the controller's /gwd/clausius/sensors document.
type Inventory struct {
	Sensors  []SensorReading  `json:"sensors"`
	Relays   []RelayReading   `json:"relays"`
	Circuits []CircuitReading `json:"circuits"`
}

type SensorReading struct {
	ID    Text `json:"id"`
	Name  Text `json:"name"`
	Value Text `json:"value"`
}

type RelayReading struct {
	Code Text `json:"code"`
	Name Text `json:"name"`
	IsOn bool `json:"isOn"`
}

type CircuitReading struct {
	Code Text `json:"code"`
}

// Text accepts a JSON string, number or null. The controller is not
// consistent about quoting ids and readings.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*t = Text(n.String())
	}
	return nil
}

func (t Text) String() string { return string(t) }

// or returns t, or fallback when t is empty.
func (t Text) or(fallback Text) string {
	if t != "" {
		return string(t)
	}
	return string(fallback)
}

// formatTemperature renders a temperature the way the controller expects:
// always with a decimal point.
func formatTemperature(t float64) string {
	s := strconv.FormatFloat(t, 'f', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
