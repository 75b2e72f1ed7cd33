// Package publish forwards decoded status frames to an MQTT broker.
package publish

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/moffa90/go-keymatrix/internal/config"
	"github.com/moffa90/go-keymatrix/telemetry"
)

// DefaultTimeout bounds each broker round trip.
const DefaultTimeout = 5 * time.Second

// QueueSize is the number of frames FrameHandler buffers for the broker.
// Frames arriving while the queue is full are dropped.
const QueueSize = 32

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Client is the part of paho.Client the publisher uses.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload published for each frame.
type Message struct {
	Time    time.Time        `json:"time"`
	Index   byte             `json:"index"`
	Valid   bool             `json:"valid"`
	Pressed []string         `json:"pressed"`
	ADC     map[string]uint8 `json:"adc"`
	LEDsOn  []string         `json:"leds_on"`
	Raw     string           `json:"raw"`
}

// Publisher publishes frames to a single topic.
type Publisher struct {
	client  Client
	topic   string
	qos     byte
	names   config.Names
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	queue     chan telemetry.Frame
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher wraps an already configured client.
func NewPublisher(client Client, topic string, qos byte, names config.Names, logger zerolog.Logger) *Publisher {
	if client == nil {
		panic("client cannot be nil")
	}
	p := &Publisher{
		client:  client,
		topic:   topic,
		qos:     qos,
		names:   names,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "mqtt").Logger(),
		now:     time.Now,
		queue:   make(chan telemetry.Frame, QueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Dial connects to the broker named in cfg.
func Dial(cfg config.MQTTConfig, names config.Names, logger zerolog.Logger) (*Publisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = ClientID()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(paho.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	p := NewPublisher(paho.NewClient(opts), cfg.Topic, cfg.QoS, names, logger)
	if err := p.wait(p.client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return p, nil
}

// ClientID derives a stable client id from the machine id.
func ClientID() string {
	id, err := machineid.ProtectedID("matrixctl")
	if err != nil {
		return fmt.Sprintf("matrixctl-%d", os.Getpid())
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return "matrixctl-" + id
}

// NewMessage renders f with display names.
func NewMessage(f telemetry.Frame, names config.Names, at time.Time) Message {
	msg := Message{
		Time:    at.UTC(),
		Index:   f.Index,
		Valid:   f.Valid,
		Pressed: []string{},
		ADC:     make(map[string]uint8, telemetry.ADCCount),
		LEDsOn:  []string{},
		Raw:     hex.EncodeToString(f.Raw),
	}
	for _, k := range f.PressedKeys() {
		msg.Pressed = append(msg.Pressed, names.Key(k))
	}
	for i, v := range f.ADC {
		msg.ADC[names.ADCName(i)] = v
	}
	for i, on := range f.LEDs {
		if on {
			msg.LEDsOn = append(msg.LEDsOn, names.LED(i))
		}
	}
	return msg
}

// Publish sends f and waits for the broker.
func (p *Publisher) Publish(f telemetry.Frame) error {
	payload, err := json.Marshal(NewMessage(f, p.names, p.now()))
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := p.wait(p.client.Publish(p.topic, p.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// FrameHandler queues valid frames for publishing and returns without
// waiting for the broker. It fits telemetry.WithFrameHandler.
func (p *Publisher) FrameHandler() func(telemetry.Frame) {
	return func(f telemetry.Frame) {
		if !f.Valid {
			return
		}
		select {
		case <-p.quit:
		case p.queue <- f:
		default:
			p.logger.Debug().Uint8("index", f.Index).Msg("publish queue full, frame dropped")
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case f := <-p.queue:
			if err := p.Publish(f); err != nil {
				p.logger.Error().Err(err).Msg("status publish failed")
			}
		}
	}
}

// Close stops the publish queue and disconnects from the broker.
// Queued frames not yet sent are dropped.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
		p.client.Disconnect(250)
	})
}

func (p *Publisher) wait(token paho.Token) error {
	if !token.WaitTimeout(p.timeout) {
		return ErrTimeout
	}
	return token.Error()
}
