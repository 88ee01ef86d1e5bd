package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputRedis   = "redis"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	Topic             string `json:"topic" yaml:"topic"`
	QoS               byte   `json:"qos,omitempty" yaml:"qos,omitempty"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	History   int    `json:"history,omitempty" yaml:"history,omitempty"`
}

type OutputConfig struct {
	Type       string       `json:"type" yaml:"type"`
	IntervalMs int          `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig  `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Redis      *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// Calibration is a linear correction applied after the device compensation.
// A zero Scale is treated as 1.
type Calibration struct {
	Scale  float64 `json:"scale" yaml:"scale"`
	Offset float64 `json:"offset" yaml:"offset"`
}

type SensorConfig struct {
	Driver   string   `json:"driver" yaml:"driver"`
	Bus      string   `json:"bus,omitempty" yaml:"bus,omitempty"`
	Address  int      `json:"address,omitempty" yaml:"address,omitempty"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`

	Oversampling    int `json:"oversampling,omitempty" yaml:"oversampling,omitempty"`
	IntegrationTime int `json:"integration_time,omitempty" yaml:"integration_time,omitempty"`
	Range           int `json:"range,omitempty" yaml:"range,omitempty"`
	SampleRate      int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	PhaseTimeoutMs  int `json:"phase_timeout_ms,omitempty" yaml:"phase_timeout_ms,omitempty"`

	Calibration map[string]Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
}

type ViewConfig struct {
	Topic          string      `json:"topic" yaml:"topic"`
	PlotIntervalMs int         `json:"plot_interval_ms" yaml:"plot_interval_ms"`
	MQTT           *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type Config struct {
	DeviceID         string         `json:"device_id" yaml:"device_id"`
	SensorType       string         `json:"sensor_type" yaml:"sensor_type"`
	SampleIntervalMs int            `json:"sample_interval_ms" yaml:"sample_interval_ms"`
	RecordIntervalMs int            `json:"record_interval_ms" yaml:"record_interval_ms"`
	RecordLength     int            `json:"record_length" yaml:"record_length"`
	StatusIntervalMs int            `json:"status_interval_ms,omitempty" yaml:"status_interval_ms,omitempty"`
	LogLevel         string         `json:"log_level" yaml:"log_level"`
	Sensors          []SensorConfig `json:"sensors" yaml:"sensors"`
	Outputs          []OutputConfig `json:"outputs" yaml:"outputs"`
	View             ViewConfig     `json:"view" yaml:"view"`
}

const defaultBus = "1"

func DefaultConfig() Config {
	return Config{
		DeviceID:         "rtsensor",
		SensorType:       SensorTypeReal,
		SampleIntervalMs: 100,
		RecordIntervalMs: 1000,
		RecordLength:     600,
		LogLevel:         "info",
		Sensors: []SensorConfig{
			{Driver: "adxl345", Bus: defaultBus, Enabled: true},
			{Driver: "tsl2561", Bus: defaultBus, Enabled: true},
			{Driver: "bmp180", Bus: defaultBus, Enabled: true, Channels: []string{"temperature", "pressure"}},
			{Driver: "htu21d", Bus: defaultBus, Enabled: true, Channels: []string{"humidity"}},
		},
		Outputs: []OutputConfig{{Type: OutputConsole, IntervalMs: 1000}},
		View:    ViewConfig{Topic: "rtsensor/sensors", PlotIntervalMs: 1000},
	}
}

// Load reads a JSON or YAML (by extension) config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// lists in the file replace the default lists instead of merging into them
	cfg.Sensors, cfg.Outputs = nil, nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	def := DefaultConfig()
	if cfg.Sensors == nil {
		cfg.Sensors = def.Sensors
	}
	if cfg.Outputs == nil {
		cfg.Outputs = def.Outputs
	}
	return cfg, nil
}

// Flags holds the command line overrides bound to a flag set.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath      string
	DeviceID        string
	SensorType      string
	SampleInterval  int
	RecordInterval  int
	RecordLength    int
	StatusInterval  int
	LogLevel        string
	I2CBus          string
	EnableSensors   string
	Outputs         string
	OutputIntervals string
	CalScales       string
	CalOffsets      string
	MQTTServer      string
	MQTTUser        string
	MQTTPass        string
	MQTTClientID    string
	MQTTTopic       string
	RedisAddr       string
	ViewTopic       string
	PlotInterval    int
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to JSON or YAML config file")
	fs.StringVarP(&f.DeviceID, "device-id", "d", "", "Device id, also the MQTT username and topic prefix")
	fs.StringVar(&f.SensorType, "sensor-type", "", "sensor type: real|simulation")
	fs.IntVarP(&f.SampleInterval, "sample-interval-ms", "i", 0, "Milliseconds between sensor polls")
	fs.IntVar(&f.RecordInterval, "record-interval-ms", 0, "Milliseconds covered by one aggregation slot")
	fs.IntVar(&f.RecordLength, "record-length", 0, "Number of aggregation slots")
	fs.IntVar(&f.StatusInterval, "status-interval-ms", 0, "Milliseconds between status tables (0 disables)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	fs.StringVar(&f.I2CBus, "i2c-bus", "", "I2C bus for every sensor (e.g. '1' -> /dev/i2c-1)")
	fs.StringVar(&f.EnableSensors, "enable-sensors", "", "Enable or disable drivers e.g. bmp180=true,tsl2561=false")
	fs.StringVar(&f.Outputs, "outputs", "", "Comma-separated outputs (console,mqtt,redis)")
	fs.StringVar(&f.OutputIntervals, "output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=100")
	fs.StringVar(&f.CalScales, "calibration-scale", "", "Per-channel scale e.g. temperature=1.01")
	fs.StringVar(&f.CalOffsets, "calibration-offset", "", "Per-channel offset e.g. temperature=-0.4")
	fs.StringVarP(&f.MQTTServer, "mqtt-server", "b", "", "MQTT server (tcp://host:port)")
	fs.StringVar(&f.MQTTUser, "mqtt-user", "", "MQTT username")
	fs.StringVarP(&f.MQTTPass, "mqtt-pass", "s", "", "MQTT password")
	fs.StringVarP(&f.MQTTClientID, "mqtt-client-id", "c", "", "MQTT client id")
	fs.StringVar(&f.MQTTTopic, "mqtt-topic", "", "MQTT topic")
	fs.StringVar(&f.RedisAddr, "redis-addr", "", "Redis address host:port")
	fs.StringVarP(&f.ViewTopic, "topic", "t", "", "Topic the viewer subscribes to")
	fs.IntVarP(&f.PlotInterval, "plot-interval-ms", "p", 0, "Viewer aggregation interval in ms")
	return f
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// LoadFromFlags loads the config file named by --config (optional) and
// applies the flags on top. Flags override values present in the file.
func LoadFromFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := f.Apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Apply writes every flag that was set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) error {
	if f.changed("device-id") {
		cfg.DeviceID = f.DeviceID
	}
	if f.changed("sensor-type") {
		cfg.SensorType = f.SensorType
	}
	if f.changed("sample-interval-ms") {
		cfg.SampleIntervalMs = f.SampleInterval
	}
	if f.changed("record-interval-ms") {
		cfg.RecordIntervalMs = f.RecordInterval
	}
	if f.changed("record-length") {
		cfg.RecordLength = f.RecordLength
	}
	if f.changed("status-interval-ms") {
		cfg.StatusIntervalMs = f.StatusInterval
	}
	if f.changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if f.changed("enable-sensors") {
		m, err := parseKeyBoolMap(f.EnableSensors)
		if err != nil {
			return fmt.Errorf("enable-sensors: %w", err)
		}
		applyEnabled(cfg, m)
	}
	if f.changed("i2c-bus") {
		for i := range cfg.Sensors {
			cfg.Sensors[i].Bus = f.I2CBus
		}
	}
	if f.changed("calibration-scale") || f.changed("calibration-offset") {
		scales, err := parseKeyFloatMap(f.CalScales)
		if err != nil {
			return fmt.Errorf("calibration-scale: %w", err)
		}
		offsets, err := parseKeyFloatMap(f.CalOffsets)
		if err != nil {
			return fmt.Errorf("calibration-offset: %w", err)
		}
		applyCalibration(cfg, scales, offsets)
	}
	if f.changed("outputs") {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(f.Outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if f.changed("output-intervals") {
		m, err := parseKeyIntMap(f.OutputIntervals)
		if err != nil {
			return fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := m[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if err := f.applyMQTT(cfg); err != nil {
		return err
	}
	if f.changed("redis-addr") {
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputRedis {
				if cfg.Outputs[i].Redis == nil {
					cfg.Outputs[i].Redis = &RedisConfig{}
				}
				cfg.Outputs[i].Redis.Addr = f.RedisAddr
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputRedis, Redis: &RedisConfig{Addr: f.RedisAddr}})
		}
	}
	if f.changed("topic") {
		cfg.View.Topic = f.ViewTopic
	}
	if f.changed("plot-interval-ms") {
		cfg.View.PlotIntervalMs = f.PlotInterval
	}
	return nil
}

// applyMQTT maps the mqtt flags onto every mqtt output and onto the viewer
// connection; when no mqtt output exists one is created.
func (f *Flags) applyMQTT(cfg *Config) error {
	names := []string{"mqtt-server", "mqtt-user", "mqtt-pass", "mqtt-client-id", "mqtt-topic"}
	set := false
	for _, n := range names {
		if f.changed(n) {
			set = true
		}
	}
	if !set {
		return nil
	}
	apply := func(m *MQTTConfig) {
		if f.changed("mqtt-server") {
			m.Server = f.MQTTServer
		}
		if f.changed("mqtt-user") {
			m.Username = f.MQTTUser
		}
		if f.changed("mqtt-pass") {
			m.Password = f.MQTTPass
		}
		if f.changed("mqtt-client-id") {
			m.ClientID = f.MQTTClientID
		}
		if f.changed("mqtt-topic") {
			m.Topic = f.MQTTTopic
		}
	}
	applied := false
	for i := range cfg.Outputs {
		if cfg.Outputs[i].Type == OutputMQTT {
			if cfg.Outputs[i].MQTT == nil {
				cfg.Outputs[i].MQTT = &MQTTConfig{}
			}
			apply(cfg.Outputs[i].MQTT)
			applied = true
		}
	}
	if !applied {
		out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
		apply(out.MQTT)
		cfg.Outputs = append(cfg.Outputs, out)
	}
	if cfg.View.MQTT == nil {
		cfg.View.MQTT = &MQTTConfig{}
	}
	apply(cfg.View.MQTT)
	return nil
}

func applyEnabled(cfg *Config, m map[string]bool) {
	seen := map[string]bool{}
	for i := range cfg.Sensors {
		d := strings.ToLower(cfg.Sensors[i].Driver)
		if v, ok := m[d]; ok {
			cfg.Sensors[i].Enabled = v
			seen[d] = true
		}
	}
	for d, v := range m {
		if !seen[d] && v {
			cfg.Sensors = append(cfg.Sensors, SensorConfig{Driver: d, Bus: defaultBus, Enabled: true})
		}
	}
}

func applyCalibration(cfg *Config, scales, offsets map[string]float64) {
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.Calibration == nil {
			s.Calibration = map[string]Calibration{}
		}
		for ch, v := range scales {
			c := s.Calibration[ch]
			c.Scale = v
			s.Calibration[ch] = c
		}
		for ch, v := range offsets {
			c := s.Calibration[ch]
			c.Offset = v
			s.Calibration[ch] = c
		}
	}
}

// Validate checks the invariants the rest of the program relies on.
func (c Config) Validate() error {
	if c.SampleIntervalMs <= 0 {
		return errors.New("sample-interval-ms must be > 0")
	}
	if c.RecordIntervalMs <= 0 {
		return errors.New("record-interval-ms must be > 0")
	}
	if c.RecordLength <= 0 {
		return errors.New("record-length must be > 0")
	}
	if c.SensorType != SensorTypeReal && c.SensorType != SensorTypeSimulation {
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	// explicit lists only; sensor.OpenAll resolves driver defaults
	claimed := map[string]string{}
	for _, s := range c.Sensors {
		if s.Driver == "" {
			return errors.New("sensor without driver")
		}
		if !s.Enabled {
			continue
		}
		for _, ch := range s.Channels {
			if prev, ok := claimed[ch]; ok {
				return fmt.Errorf("channel %q provided by both %s and %s", ch, prev, s.Driver)
			}
			claimed[ch] = s.Driver
		}
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputMQTT, OutputRedis:
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
		if o.IntervalMs < 0 {
			return fmt.Errorf("output %s: interval must be >= 0", o.Type)
		}
	}
	return nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyValues splits "a=1,b=2" into trimmed key/value pairs.
func parseKeyValues(s string, fn func(k, v string) error) error {
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid entry '%s': want key=value", p)
		}
		if err := fn(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])); err != nil {
			return err
		}
	}
	return nil
}

func parseKeyFloatMap(s string) (map[string]float64, error) {
	out := map[string]float64{}
	err := parseKeyValues(s, func(k, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid value for '%s': %w", k, err)
		}
		out[k] = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	err := parseKeyValues(s, func(k, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for '%s': %w", k, err)
		}
		out[k] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[string]bool, error) {
	out := map[string]bool{}
	err := parseKeyValues(s, func(k, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for '%s': %w", k, err)
		}
		out[strings.ToLower(k)] = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
