package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

type token struct {
	err     error
	timeout bool
}

func (t *token) Wait() bool                     { return !t.timeout }
func (t *token) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *token) Error() error                   { return t.err }
func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	subscribe []string
	handler   mqtt.MessageHandler
	next      *token
	closed    bool
	offline   bool
}

func (c *fakeClient) Connect() mqtt.Token { return &token{} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.next != nil {
		return c.next
	}
	return &token{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribe = append(c.subscribe, topic)
	c.handler = cb
	return &token{}
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.offline
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestWithDefaults(t *testing.T) {
	cfg := WithDefaults(config.MQTTConfig{}, "rtsensor")
	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, "rtsensor", cfg.Username)
	assert.Equal(t, "rtsensor/sensors", cfg.Topic)
	assert.Regexp(t, `^rtsensor-[0-9a-f]{8}$`, cfg.ClientID)

	other := WithDefaults(config.MQTTConfig{}, "rtsensor")
	assert.NotEqual(t, cfg.ClientID, other.ClientID)

	kept := WithDefaults(config.MQTTConfig{Server: "tcp://b:1883", Username: "u", ClientID: "c", Topic: "t"}, "rtsensor")
	assert.Equal(t, config.MQTTConfig{Server: "tcp://b:1883", Username: "u", ClientID: "c", Topic: "t"}, kept)
}

func TestPublishRecord(t *testing.T) {
	fc := &fakeClient{}
	m := &MQTTOutput{client: fc, cfg: WithDefaults(config.MQTTConfig{QoS: 1}, "rtsensor"), deviceID: "rtsensor"}

	rec := telemetry.New("", "", 12.5, map[sensor.ChannelID]float64{sensor.Humidity: 40})
	require.NoError(t, m.Publish(rec))
	require.Len(t, fc.published, 1)
	p := fc.published[0]
	assert.Equal(t, "rtsensor/sensors", p.topic)
	assert.Equal(t, byte(1), p.qos)
	assert.False(t, p.retained)
	assert.JSONEq(t, `{"timestamp":12.5,"deviceID":"rtsensor","topic":"rtsensor/sensors","humidity":40}`, string(p.payload))

	require.NoError(t, m.Close())
	assert.True(t, fc.closed)
}

func TestPublishErrors(t *testing.T) {
	fc := &fakeClient{next: &token{err: errors.New("broker refused")}}
	m := &MQTTOutput{client: fc, cfg: WithDefaults(config.MQTTConfig{}, "d")}
	ts := 1.0
	assert.ErrorContains(t, m.Publish(telemetry.Record{Timestamp: &ts}), "broker refused")

	fc.next = &token{timeout: true}
	assert.ErrorContains(t, m.Publish(telemetry.Record{Timestamp: &ts}), "timed out")

	assert.ErrorIs(t, m.Publish(telemetry.Record{}), telemetry.ErrNoTimestamp)

	assert.ErrorIs(t, (&MQTTOutput{}).PublishRaw("x", nil, false), ErrNotConnected)
}

func TestPublishWhileDisconnectedFailsFast(t *testing.T) {
	fc := &fakeClient{offline: true, next: &token{timeout: true}}
	m := &MQTTOutput{client: fc, cfg: WithDefaults(config.MQTTConfig{}, "d")}
	ts := 1.0

	err := m.Publish(telemetry.Record{Timestamp: &ts})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorContains(t, err, "d/sensors")
	assert.Empty(t, fc.published)

	fc.mu.Lock()
	fc.offline, fc.next = false, nil
	fc.mu.Unlock()
	require.NoError(t, m.Publish(telemetry.Record{Timestamp: &ts}))
	assert.Len(t, fc.published, 1)
}

func TestPublishDiscovery(t *testing.T) {
	fc := &fakeClient{}
	cfg := WithDefaults(config.MQTTConfig{DiscoveryTopic: "homeassistant/sensor/rtsensor_%s/config"}, "rtsensor")
	m := &MQTTOutput{client: fc, cfg: cfg, discoveryTopic: cfg.DiscoveryTopic}

	m.publishDiscovery([]sensor.ChannelID{sensor.Temperature, sensor.AccelY})
	require.Len(t, fc.published, 2)
	assert.Equal(t, "homeassistant/sensor/rtsensor_temperature/config", fc.published[0].topic)
	assert.True(t, fc.published[0].retained)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(fc.published[0].payload, &payload))
	assert.Equal(t, map[string]interface{}{
		"name":                  "rtsensor temperature",
		"state_topic":           "rtsensor/sensors",
		"state_class":           "measurement",
		"value_template":        "{{ value_json.temperature }}",
		"json_attributes_topic": "rtsensor/sensors",
		"unique_id":             "rtsensor_temperature",
		"unit_of_measurement":   "°C",
		"device_class":          "temperature",
	}, payload)

	require.NoError(t, json.Unmarshal(fc.published[1].payload, &payload))
	assert.Equal(t, "{{ value_json.accel[1] }}", payload["value_template"])
}

func TestDiscoveryTopicFor(t *testing.T) {
	assert.Equal(t, "ha/x_light/config", discoveryTopicFor("ha/x_%s/config", sensor.Light))
	assert.Equal(t, "ha/sensors/light", discoveryTopicFor("ha/sensors/", sensor.Light))
}

func TestSubscriberDeliver(t *testing.T) {
	var got []telemetry.Record
	s := &Subscriber{topic: "dev/sensors", handle: func(r telemetry.Record) { got = append(got, r) }, logger: zap.NewNop()}

	s.deliver("dev/sensors", []byte(`{"timestamp": 3, "light": 120}`))
	s.deliver("dev/sensors", []byte(`{"light": 120}`))
	s.deliver("dev/sensors", []byte(`garbage`))

	require.Len(t, got, 1)
	assert.Equal(t, "dev/sensors", got[0].Topic)
	assert.Equal(t, map[sensor.ChannelID]float64{sensor.Light: 120}, got[0].Values())
}

func TestSubscriberSubscribes(t *testing.T) {
	fc := &fakeClient{}
	s := &Subscriber{client: fc, topic: "dev/sensors", handle: func(telemetry.Record) {}, logger: zap.NewNop()}
	s.subscribe()
	assert.Equal(t, []string{"dev/sensors"}, fc.subscribe)
	assert.NotNil(t, fc.handler)
}
