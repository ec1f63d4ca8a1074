package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("mqtt client not connected")

var (
	DefaultMqttService *MqttService
	once               sync.Once
)

type MqttService struct {
	id string

	client mqtt.Client

	mu       sync.Mutex                     // guards topics, handlers and running
	topics   map[string]byte                // topic -> QoS, replayed on every (re)connect
	handlers map[string]mqtt.MessageHandler // topic -> handler
	running  bool
}

func InitMqttService(id, brokerURL, user, password string) error {
	var initErr error
	once.Do(func() {
		DefaultMqttService = NewMqttService(id, brokerURL, user, password)
		initErr = DefaultMqttService.Start()
	})
	return initErr
}

// GetMqttService returns the default MqttService instance
func GetMqttService() *MqttService {
	return DefaultMqttService
}

// NewMqttService creates the client with ordered delivery: handlers run one at
// a time on the client's router goroutine and therefore must not block.
func NewMqttService(id, brokerURL, user, password string) *MqttService {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(id).SetOrderMatters(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectRetry(true)
	opts.SetAutoReconnect(true)

	opts.SetUsername(user)
	opts.SetPassword(password)

	service := newService(id)

	opts.SetOnConnectHandler(service.onConnectHandler)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("client", id).Msg("MQTT connection lost")
	})

	service.client = mqtt.NewClient(opts)

	return service
}

func newService(id string) *MqttService {
	return &MqttService{
		id:       id,
		topics:   make(map[string]byte),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

// AddSubscriptionTopic may be called before Start or while running.
func (s *MqttService) AddSubscriptionTopic(topic string, qos byte, handler mqtt.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topics[topic] = qos
	s.handlers[topic] = handler

	if s.running && s.client.IsConnected() {
		s.subscribeToTopic(topic, qos)
	}
}

func (s *MqttService) subscribeToTopic(topic string, qos byte) {
	handler, exists := s.handlers[topic]
	if !exists {
		log.Error().Str("topic", topic).Msg("No handler registered for topic")
		return
	}

	token := s.client.Subscribe(topic, qos, handler)
	token.Wait()
	if token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
	} else {
		log.Info().Str("topic", topic).Uint8("qos", qos).Msg("Subscribed")
	}
}

// onConnectHandler resubscribes every registered topic; paho does not keep
// subscriptions across a clean-session reconnect.
func (s *MqttService) onConnectHandler(client mqtt.Client) {
	log.Info().Str("client", s.id).Msg("MQTT Client Connected!")
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.topics) == 0 {
		log.Info().Msg("No topics registered for subscription.")
		return
	}
	log.Info().Int("count", len(s.topics)).Msg("Resubscribing to topics...")
	for topic, qos := range s.topics {
		s.subscribeToTopic(topic, qos)
	}
}

func (s *MqttService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("MQTT Client Service is already running")
	}
	log.Info().Msg("Starting MQTT Client Service...")

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect MQTT client: %w", token.Error())
	}
	s.running = true
	log.Info().Msg("MQTT Client Service started.")
	return nil
}

func (s *MqttService) Stop() {
	log.Info().Msg("Stopping MQTT Client Service...")
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	log.Info().Msg("MQTT Client Service stopped.")
}

// PublishAsync hands the payload to the client and returns without waiting.
// ack runs once the broker confirms delivery (PUBACK for QoS 1).
func (s *MqttService) PublishAsync(topic string, qos byte, payload []byte, ack func()) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("publish to '%s': %w", topic, ErrNotConnected)
	}
	token := s.client.Publish(topic, qos, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Publish was not acknowledged")
			return
		}
		if ack != nil {
			ack()
		}
	}()
	log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Published message")
	return nil
}

func (s *MqttService) Unsubscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[topic]; !exists {
		return fmt.Errorf("topic '%s' is not subscribed", topic)
	}

	if s.running && s.client.IsConnected() {
		token := s.client.Unsubscribe(topic)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to unsubscribe from topic '%s': %w", topic, token.Error())
		}
		log.Info().Str("topic", topic).Msg("Unsubscribed")
	}

	delete(s.topics, topic)
	delete(s.handlers, topic)

	return nil
}
