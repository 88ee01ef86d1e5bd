package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/output"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

const (
	// defaults
	DefaultServer       = "tcp://localhost:1883"
	DefaultTopicSuffix  = "/sensors"
	connectRetry        = time.Second
	publishTimeout      = 5 * time.Second
	disconnectQuiesceMs = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
)

// client is the part of the paho client the outputs use.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
}

// ErrNotConnected is returned by publishes made while the broker connection is down.
var ErrNotConnected = errors.New("mqtt client not connected")

type channelMeta struct {
	unit, class, template string
}

var channelInfo = map[sensor.ChannelID]channelMeta{
	sensor.AccelX:      {"g", "", "{{ value_json.accel[0] }}"},
	sensor.AccelY:      {"g", "", "{{ value_json.accel[1] }}"},
	sensor.AccelZ:      {"g", "", "{{ value_json.accel[2] }}"},
	sensor.Light:       {"lx", "illuminance", "{{ value_json.light }}"},
	sensor.Temperature: {"°C", "temperature", "{{ value_json.temperature }}"},
	sensor.Pressure:    {"hPa", "atmospheric_pressure", "{{ value_json.pressure }}"},
	sensor.Humidity:    {"%", "humidity", "{{ value_json.humidity }}"},
	sensor.ADC0:        {"V", "voltage", "{{ value_json.adc.adc0 }}"},
	sensor.ADC1:        {"V", "voltage", "{{ value_json.adc.adc1 }}"},
	sensor.ADC2:        {"V", "voltage", "{{ value_json.adc.adc2 }}"},
	sensor.ADC3:        {"V", "voltage", "{{ value_json.adc.adc3 }}"},
}

// WithDefaults fills the connection settings the device id implies: the
// username, a unique client id and the <deviceID>/sensors topic.
func WithDefaults(cfg config.MQTTConfig, deviceID string) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.Username == "" {
		cfg.Username = deviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = deviceID + "-" + uuid.NewString()[:8]
	}
	if cfg.Topic == "" {
		cfg.Topic = deviceID + DefaultTopicSuffix
	}
	return cfg
}

func clientOptions(cfg config.MQTTConfig, logger *zap.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetry).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.String("server", cfg.Server), zap.Error(err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", zap.String("server", cfg.Server), zap.String("client_id", cfg.ClientID))
		})
	return opts
}

type MQTTOutput struct {
	client         client
	cfg            config.MQTTConfig
	deviceID       string
	discoveryTopic string
	logger         *zap.Logger
}

// NewMQTT connects in the background, retrying every second, and publishes the
// discovery entries of channels once the session is up.
func NewMQTT(cfg config.MQTTConfig, deviceID string, channels []sensor.ChannelID, logger *zap.Logger) (output.Output, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = WithDefaults(cfg, deviceID)
	m := &MQTTOutput{cfg: cfg, deviceID: deviceID, discoveryTopic: cfg.DiscoveryTopic, logger: logger}
	opts := clientOptions(cfg, logger)
	if m.discoveryTopic != "" {
		// republished on every connect
		connected := opts.OnConnect
		opts.SetOnConnectHandler(func(c mqtt.Client) {
			connected(c)
			go m.publishDiscovery(channels)
		})
	}
	m.client = mqtt.NewClient(opts)
	m.client.Connect()
	return m, nil
}

func (m *MQTTOutput) Publish(rec telemetry.Record) error {
	if rec.DeviceID == "" {
		rec.DeviceID = m.deviceID
	}
	if rec.Topic == "" {
		rec.Topic = m.cfg.Topic
	}
	b, err := telemetry.Encode(rec)
	if err != nil {
		return err
	}
	return m.PublishRaw(m.cfg.Topic, b, false)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages. While the connection is
// down it fails at once with ErrNotConnected instead of queueing.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil || !m.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt publish to %s: %w", topic, ErrNotConnected)
	}
	token := m.client.Publish(topic, m.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

// publishDiscovery publishes one Home Assistant entry per channel. A topic
// with a %s formatter gets the channel name, otherwise the channel is appended.
func (m *MQTTOutput) publishDiscovery(channels []sensor.ChannelID) {
	for _, ch := range channels {
		payload := discoveryPayload(m.cfg, ch)
		b, err := json.Marshal(payload)
		if err != nil {
			m.logger.Warn("mqtt discovery encode error", zap.Error(err))
			continue
		}
		topic := discoveryTopicFor(m.discoveryTopic, ch)
		if err := m.PublishRaw(topic, b, true); err != nil {
			m.logger.Warn("mqtt discovery publish error", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func discoveryTopicFor(base string, ch sensor.ChannelID) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, ch)
	}
	return strings.TrimSuffix(base, "/") + "/" + string(ch)
}

// helper: build a human-friendly discovery name with the channel appended
func discoveryName(cfg config.MQTTConfig, ch sensor.ChannelID) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = cfg.Username
	}
	return fmt.Sprintf("%s %s", name, ch)
}

// helper: build a unique id for discovery with the channel appended
func discoveryUniqueID(cfg config.MQTTConfig, ch sensor.ChannelID) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.Username
	}
	return fmt.Sprintf("%s_%s", uid, ch)
}

func discoveryPayload(cfg config.MQTTConfig, ch sensor.ChannelID) map[string]interface{} {
	meta := channelInfo[ch]
	payload := map[string]interface{}{
		keyName:                discoveryName(cfg, ch),
		keyStateTopic:          cfg.Topic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       meta.template,
		keyJSONAttributesTopic: cfg.Topic,
		keyUniqueID:            discoveryUniqueID(cfg, ch),
	}
	if meta.unit != "" {
		payload[keyUnitOfMeasurement] = meta.unit
	}
	if meta.class != "" {
		payload[keyDeviceClass] = meta.class
	}
	return payload
}
