package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Store   StoreConfig   `json:"store"`

	// Engine controls execution behavior for action items.
	Engine EngineConfig `json:"engine"`

	// Scheduler controls the minute-cadence reminder loop.
	Scheduler SchedulerConfig `json:"scheduler"`

	Notify NotifyConfig `json:"notify"`
}

type ServerConfig struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `json:"addr,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig selects the record store backend.
//
// Driver values:
//   - "memory": in-process map store (default)
//   - "sqlite": SQLite database file
type StoreConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only); "0s" means default.
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// Seed loads a small sample data set on startup when the store is empty.
	Seed bool `json:"seed,omitempty"`
}

// EngineConfig controls the execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - executor_timeout: "30s"
//   - history_size: 100
type EngineConfig struct {
	// ExecutorTimeout bounds a single executor invocation.
	// Use "0s" to disable the timeout.
	ExecutorTimeout string `json:"executor_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// SchedulerConfig controls the reminder check loop.
//
// Enabled is a pointer so we can distinguish "omitted" (default true) from
// an explicit false.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// Lookahead is the due-soon scan window for reminder candidates.
	// Default "6m".
	Lookahead string `json:"lookahead,omitempty"`
}

// NotifyConfig controls the notification sink.
//
// If the whole section is omitted, notifications go to the console sink.
type NotifyConfig struct {
	RatePerSec  int `json:"rate_per_sec,omitempty"`
	HistorySize int `json:"history_size,omitempty"`

	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

func (s SchedulerConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}
