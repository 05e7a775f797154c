package align

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
)

// TelemetryPublisher publishes registration telemetry to MQTT: per-iteration
// EM records while CPD runs and the final transform for every aligned cloud.
// The aligner core stays I/O-free; the publisher plugs in through the
// observer callback.
type TelemetryPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// ConnectTelemetry builds and connects an MQTT client from config.
// Environment variables MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and
// MQTT_PASSWORD override the file settings. Returns nil when no broker is
// configured.
func ConnectTelemetry(cfg MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		log.Println("telemetry disabled: no MQTT broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = cfg.ClientID
	}
	if clientID == "" {
		clientID = "pointalign"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = cfg.Username
	}
	if username != "" {
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = cfg.Password
		}
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// NewTelemetryPublisher wraps an MQTT client. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, the config, or the default "pointalign", in that
// order. A nil client disables publishing.
func NewTelemetryPublisher(client mqtt.Client, cfg MQTTConfig) *TelemetryPublisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = cfg.PublishPrefix
	}
	if prefix == "" {
		prefix = "pointalign"
	}

	return &TelemetryPublisher{
		client: client,
		prefix: prefix,
		qos:    0,    // fire-and-forget for per-iteration records
		retain: true, // retain the latest, like position updates
	}
}

// Observer returns a CPD observer that publishes each iteration under
// <prefix>/registration/<cloud>/iteration. Publish failures are logged, not
// propagated, and never stop the aligner.
func (p *TelemetryPublisher) Observer(cloud string) func(CPDIteration) bool {
	return func(it CPDIteration) bool {
		if err := p.PublishIteration(cloud, it); err != nil {
			log.Printf("telemetry: iteration %d for %q: %v", it.Iteration, cloud, err)
		}
		return true
	}
}

// PublishIteration publishes one EM iteration record.
func (p *TelemetryPublisher) PublishIteration(cloud string, it CPDIteration) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	topic := fmt.Sprintf("%s/registration/%s/iteration", p.prefix, cloud)
	return p.publishJSON(topic, it)
}

// transformRecord is the wire form of a published final transform.
type transformRecord struct {
	Cloud        string    `json:"cloud"`
	Method       string    `json:"method"`
	Rotation     Mat3      `json:"rotation"`
	Translation  r3.Vector `json:"translation"`
	Iterations   int       `json:"iterations,omitempty"`
	SigmaSquared float64   `json:"sigmaSquared,omitempty"`
	Converged    bool      `json:"converged,omitempty"`
	Timestamp    int64     `json:"timestamp"`
}

// PublishTransform publishes the final transform for an aligned cloud under
// <prefix>/registration/<cloud>/transform.
func (p *TelemetryPublisher) PublishTransform(cloud string, method Method, t AffineTransform, res *CPDResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	rec := transformRecord{
		Cloud:       cloud,
		Method:      method.String(),
		Rotation:    t.Rotation(),
		Translation: t.Translation(),
		Timestamp:   time.Now().Unix(),
	}
	if res != nil {
		rec.Iterations = res.Iterations
		rec.SigmaSquared = res.SigmaSquared
		rec.Converged = res.Converged
	}

	topic := fmt.Sprintf("%s/registration/%s/transform", p.prefix, cloud)
	if err := p.publishJSON(topic, rec); err != nil {
		return err
	}

	log.Printf("published transform for %q (%v)", cloud, method)
	return nil
}

func (p *TelemetryPublisher) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telemetry: %w", err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, data)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the publish Quality of Service level (0, 1, or 2).
func (p *TelemetryPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages are retained by the broker.
func (p *TelemetryPublisher) SetRetain(retain bool) {
	p.retain = retain
}
