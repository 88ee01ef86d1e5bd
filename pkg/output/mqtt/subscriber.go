package mqtt

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

// Handler receives every decoded record of the subscribed topic.
type Handler func(telemetry.Record)

// Subscriber decodes the JSON records published on one topic.
type Subscriber struct {
	client client
	topic  string
	qos    byte
	handle Handler
	logger *zap.Logger
}

// NewSubscriber prepares a subscription to topic. The subscription is
// (re)established on every connect.
func NewSubscriber(cfg config.MQTTConfig, topic string, handle Handler, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := cfg.Username
	if id == "" {
		id = "viewer"
	}
	cfg = WithDefaults(cfg, id)
	s := &Subscriber{topic: topic, qos: cfg.QoS, handle: handle, logger: logger}
	opts := clientOptions(cfg, logger)
	connected := opts.OnConnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		connected(c)
		s.subscribe()
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Run connects and delivers records until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	s.client.Connect()
	<-ctx.Done()
	s.client.Disconnect(disconnectQuiesceMs)
	return nil
}

func (s *Subscriber) subscribe() {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.deliver(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Warn("mqtt subscribe timed out", zap.String("topic", s.topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt subscribe failed", zap.String("topic", s.topic), zap.Error(err))
		return
	}
	s.logger.Info("subscribed", zap.String("topic", s.topic))
}

func (s *Subscriber) deliver(topic string, payload []byte) {
	rec, err := telemetry.Decode(payload)
	if err != nil {
		s.logger.Debug("dropping undecodable message", zap.String("topic", topic), zap.Error(err))
		return
	}
	if rec.Timestamp == nil {
		s.logger.Debug("dropping record without timestamp", zap.String("topic", topic))
		return
	}
	if rec.Topic == "" {
		rec.Topic = topic
	}
	s.handle(rec)
}
