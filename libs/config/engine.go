package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineDefaults are the scheduling knobs and lookup tables loaded once at
// startup. Timezone labels are plain configuration data, not engine state.
type EngineDefaults struct {
	GranularityMinutes int             `yaml:"granularity_minutes"`
	MinSlotMinutes     int             `yaml:"min_slot_minutes"`
	PullTimeoutSecs    int             `yaml:"pull_timeout_seconds"`
	PushTimeoutSecs    int             `yaml:"push_timeout_seconds"`
	SyncMaxAttempts    int             `yaml:"sync_max_attempts"`
	SyncBackoffSecs    int             `yaml:"sync_backoff_seconds"`
	Timezones          []TimezoneLabel `yaml:"timezones"`
}

type TimezoneLabel struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

func (d EngineDefaults) Granularity() time.Duration {
	return time.Duration(d.GranularityMinutes) * time.Minute
}

func (d EngineDefaults) MinSlot() time.Duration {
	return time.Duration(d.MinSlotMinutes) * time.Minute
}

func (d EngineDefaults) PullTimeout() time.Duration {
	return time.Duration(d.PullTimeoutSecs) * time.Second
}

func (d EngineDefaults) PushTimeout() time.Duration {
	return time.Duration(d.PushTimeoutSecs) * time.Second
}

func (d EngineDefaults) SyncBackoff() time.Duration {
	return time.Duration(d.SyncBackoffSecs) * time.Second
}

// LoadEngineDefaults reads the optional YAML defaults file. An empty path or a
// missing file yields the built-in defaults; a malformed file is an error.
func LoadEngineDefaults(path string) (EngineDefaults, error) {
	d := EngineDefaults{
		GranularityMinutes: 15,
		MinSlotMinutes:     15,
		PullTimeoutSecs:    5,
		PushTimeoutSecs:    10,
		SyncMaxAttempts:    5,
		SyncBackoffSecs:    60,
	}
	if path == "" {
		return d, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return EngineDefaults{}, err
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return EngineDefaults{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if d.GranularityMinutes <= 0 || d.MinSlotMinutes <= 0 {
		return EngineDefaults{}, fmt.Errorf("%s: granularity and min slot must be positive", path)
	}
	for _, tz := range d.Timezones {
		if _, err := time.LoadLocation(tz.ID); err != nil {
			return EngineDefaults{}, fmt.Errorf("%s: unknown timezone %q", path, tz.ID)
		}
	}
	return d, nil
}
