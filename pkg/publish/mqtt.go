// Package publish forwards calibration results and region transitions to an
// MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/ranging"
)

// DefaultStateTopic is the topic prefix region transitions are published
// under when MQTTOptions.StateTopic is empty.
const DefaultStateTopic = "airlocator/region"

const (
	defaultTimeout = 5 * time.Second
	disconnectMs   = 250
)

// MQTTOptions configures an MQTT publisher.
type MQTTOptions struct {
	Broker   string
	Topic      string
	StateTopic string
	ClientID   string
	// Timeout bounds connecting and every publish. Zero means five seconds.
	Timeout time.Duration
}

// MQTT publishes calibration outcomes as retained JSON messages.
type MQTT struct {
	client     mqtt.Client
	topic      string
	stateTopic string
	timeout    time.Duration
}

// Message is the JSON payload of a published outcome.
type Message struct {
	Host string `json:"host"`
	calibration.Outcome
}

// StateMessage is the JSON payload of a published region transition.
type StateMessage struct {
	Host   string              `json:"host"`
	Region string              `json:"region"`
	State  ranging.RegionState `json:"state"`
	At     time.Time           `json:"at"`
}

// NewMQTT connects to the broker.
func NewMQTT(o MQTTOptions) (*MQTT, error) {
	if o.ClientID == "" {
		host, _ := os.Hostname()
		o.ClientID = "airlocator-" + host
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.StateTopic == "" {
		o.StateTopic = DefaultStateTopic
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(o.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(o.Timeout) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", o.Broker, err)
	}

	logrus.WithFields(logrus.Fields{
		"broker": o.Broker,
		"topic":  o.Topic,
	}).Info("connected to mqtt broker")
	m := newMQTT(client, o.Topic, o.Timeout)
	m.stateTopic = o.StateTopic
	return m, nil
}

func newMQTT(client mqtt.Client, topic string, timeout time.Duration) *MQTT {
	return &MQTT{client: client, topic: topic, stateTopic: DefaultStateTopic, timeout: timeout}
}

// Topic returns the topic an outcome for region is published on.
func (m *MQTT) Topic(region string) string {
	return m.topic + "/" + region
}

// Publish sends o to the broker and waits for the publish to complete.
func (m *MQTT) Publish(o calibration.Outcome) error {
	payload, err := encode(o)
	if err != nil {
		return err
	}

	topic := m.Topic(o.Region)
	if err := m.send(topic, payload); err != nil {
		return err
	}
	logrus.WithField("topic", topic).Debug("calibration result published")
	return nil
}

// StateTopic returns the topic transitions of region are published on.
func (m *MQTT) StateTopic(region string) string {
	return m.stateTopic + "/" + region
}

// PublishTransition sends the new state of a monitored region as a retained
// message.
func (m *MQTT) PublishTransition(t ranging.Transition) error {
	host, _ := os.Hostname()
	region := t.Region.Key()
	payload, err := json.Marshal(StateMessage{Host: host, Region: region, State: t.State, At: t.At})
	if err != nil {
		return fmt.Errorf("failed to encode region state: %w", err)
	}

	topic := m.StateTopic(region)
	if err := m.send(topic, payload); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"topic": topic, "state": t.State}).Debug("region state published")
	return nil
}

func (m *MQTT) send(topic string, payload []byte) error {
	token := m.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(disconnectMs)
}

func encode(o calibration.Outcome) ([]byte, error) {
	host, _ := os.Hostname()
	b, err := json.Marshal(Message{Host: host, Outcome: o})
	if err != nil {
		return nil, fmt.Errorf("failed to encode calibration result: %w", err)
	}
	return b, nil
}
