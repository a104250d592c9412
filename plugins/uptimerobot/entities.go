package uptimerobot

import (
	"github.com/joshp123/gohass/internal/coordinator"
	"github.com/joshp123/gohass/internal/core"
)

const (
	Attribution             = "Data provided by Uptime Robot"
	DeviceClassConnectivity = "connectivity"
)

// MonitorSensor is a connectivity binary_sensor for one monitor. It reads the
// coordinator's last data and is unavailable while polling fails.
type MonitorSensor struct {
	coord *coordinator.Coordinator[[]Monitor]
	id    int64
	name  string
}

func NewMonitorSensor(coord *coordinator.Coordinator[[]Monitor], monitor Monitor) *MonitorSensor {
	return &MonitorSensor{coord: coord, id: monitor.ID, name: monitor.FriendlyName}
}

func (s *MonitorSensor) UniqueID() string        { return Monitor{ID: s.id}.Key() }
func (s *MonitorSensor) Name() string            { return s.name }
func (s *MonitorSensor) Platform() core.Platform { return core.PlatformBinarySensor }

func (s *MonitorSensor) monitor() (Monitor, bool) {
	for _, m := range s.coord.Data() {
		if m.ID == s.id {
			return m, true
		}
	}
	return Monitor{}, false
}

func (s *MonitorSensor) Available() bool {
	if !s.coord.LastUpdateSuccess() {
		return false
	}
	_, ok := s.monitor()
	return ok
}

func (s *MonitorSensor) IsOn() bool {
	m, _ := s.monitor()
	return m.Up()
}

func (s *MonitorSensor) Snapshot() core.Snapshot {
	m, _ := s.monitor()
	state := core.StateOff
	if m.Up() {
		state = core.StateOn
	}
	return core.Snapshot{
		State: state,
		Attributes: map[string]any{
			"device_class": DeviceClassConnectivity,
			"attribution":  Attribution,
			"target":       m.URL,
		},
	}
}
