package uptimerobot

import "strconv"

// Monitor status values reported by the v2 API.
const (
	StatusPaused     = 0
	StatusNotChecked = 1
	StatusUp         = 2
	StatusSeemsDown  = 8
	StatusDown       = 9
)

const (
	statOK          = "ok"
	errInvalidParam = "invalid_parameter"
	paramAPIKey     = "api_key"
)

type Monitor struct {
	ID           int64  `json:"id"`
	FriendlyName string `json:"friendly_name"`
	URL          string `json:"url"`
	Type         int    `json:"type"`
	Status       int    `json:"status"`
	Interval     int    `json:"interval,omitempty"`
}

func (m Monitor) Key() string { return strconv.FormatInt(m.ID, 10) }

func (m Monitor) Up() bool { return m.Status == StatusUp }

type Account struct {
	Email           string `json:"email"`
	UserID          int64  `json:"user_id"`
	MonitorLimit    int    `json:"monitor_limit,omitempty"`
	MonitorInterval int    `json:"monitor_interval,omitempty"`
	UpMonitors      int    `json:"up_monitors,omitempty"`
	DownMonitors    int    `json:"down_monitors,omitempty"`
	PausedMonitors  int    `json:"paused_monitors,omitempty"`
}

func (a Account) Key() string { return strconv.FormatInt(a.UserID, 10) }

type apiErrorBody struct {
	Type          string `json:"type"`
	ParameterName string `json:"parameter_name,omitempty"`
	PassedValue   string `json:"passed_value,omitempty"`
	Message       string `json:"message,omitempty"`
}

type envelope struct {
	Stat     string        `json:"stat"`
	Error    *apiErrorBody `json:"error,omitempty"`
	Monitors []Monitor     `json:"monitors,omitempty"`
	Account  *Account      `json:"account,omitempty"`
}

// requestForm is the form body every API method takes.
type requestForm struct {
	APIKey string `schema:"api_key"`
	Format string `schema:"format"`
}
