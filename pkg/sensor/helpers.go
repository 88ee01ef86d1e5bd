package sensor

import (
	"fmt"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
)

// channelSettings extracts the enabled channel subset and the per-channel
// calibration from a sensor config. An empty channel list enables every
// channel the driver offers.
func channelSettings(cfg config.SensorConfig, offered []ChannelID) ([]ChannelID, map[ChannelID]config.Calibration, error) {
	has := make(map[ChannelID]bool, len(offered))
	for _, c := range offered {
		has[c] = true
	}
	enabled := make([]ChannelID, 0, len(cfg.Channels))
	for _, name := range cfg.Channels {
		c, err := ParseChannel(name)
		if err != nil {
			return nil, nil, err
		}
		if !has[c] {
			return nil, nil, fmt.Errorf("%s has no channel %q", cfg.Driver, c)
		}
		enabled = append(enabled, c)
	}
	if len(enabled) == 0 {
		enabled = append(enabled, offered...)
	}

	cal := make(map[ChannelID]config.Calibration)
	for name, c := range cfg.Calibration {
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, nil, fmt.Errorf("calibration: %w", err)
		}
		// flag-level calibration is applied to every sensor; keep only ours
		if has[ch] {
			cal[ch] = c
		}
	}
	return enabled, cal, nil
}
