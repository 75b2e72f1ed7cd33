package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-keymatrix/internal/config"
	"github.com/moffa90/go-keymatrix/protocol"
	"github.com/moffa90/go-keymatrix/telemetry"
)

type fakeToken struct {
	err      error
	timedOut bool
	release  chan struct{}
}

func (t *fakeToken) Wait() bool { return t.WaitTimeout(0) }
func (t *fakeToken) WaitTimeout(time.Duration) bool {
	if t.release != nil {
		<-t.release
	}
	return !t.timedOut
}
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return &fakeToken{} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func (c *fakeClient) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// statusFrame builds a frame with keys 0 and 9 pressed, ADC[i]=i*10 and LED 2 lit.
func statusFrame(t *testing.T, valid bool) telemetry.Frame {
	t.Helper()
	raw := make([]byte, telemetry.FrameSize)
	raw[0] = telemetry.FrameMarker
	raw[1] = 7
	raw[2] = 0x01
	raw[3] = 0x02
	for i := 0; i < telemetry.ADCCount; i++ {
		raw[5+i] = byte(i * 10)
	}
	raw[19] = 0x04
	raw[22] = protocol.XOR8(raw[:22])
	if !valid {
		raw[22] ^= 0xFF
	}
	raw[23] = protocol.FrameTrailer

	f, err := telemetry.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, valid, f.Valid)
	return f
}

func TestNewMessage(t *testing.T) {
	names := config.Names{Keys: []string{"Fire"}, ADC: []string{"Throttle"}}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := NewMessage(statusFrame(t, true), names, at)

	require.Equal(t, byte(7), msg.Index)
	require.True(t, msg.Valid)
	require.Equal(t, []string{"Fire", "Key 10"}, msg.Pressed)
	require.Equal(t, uint8(0), msg.ADC["Throttle"])
	require.Equal(t, uint8(130), msg.ADC["ADC 14"])
	require.Len(t, msg.ADC, telemetry.ADCCount)
	require.Equal(t, []string{"LED 3"}, msg.LEDsOn)
	require.Equal(t, at, msg.Time)
	require.True(t, strings.HasPrefix(msg.Raw, "aa07"))
}

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "keymatrix/status", 1, config.Names{}, zerolog.Nop())

	require.NoError(t, p.Publish(statusFrame(t, true)))
	require.Len(t, client.messages, 1)
	require.Equal(t, "keymatrix/status", client.messages[0].topic)
	require.Equal(t, byte(1), client.messages[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &msg))
	require.Equal(t, []string{"Key 1", "Key 10"}, msg.Pressed)

	p.Close()
	require.True(t, client.Disconnected())
	p.Close()
}

func TestPublishErrors(t *testing.T) {
	client := &fakeClient{token: &fakeToken{timedOut: true}}
	p := NewPublisher(client, "status", 0, config.Names{}, zerolog.Nop())

	err := p.Publish(statusFrame(t, true))
	require.ErrorIs(t, err, ErrTimeout)

	brokerErr := errors.New("not authorized")
	client.mu.Lock()
	client.token = &fakeToken{err: brokerErr}
	client.mu.Unlock()
	err = p.Publish(statusFrame(t, true))
	require.ErrorIs(t, err, brokerErr)
	require.Contains(t, err.Error(), "publish status")
}

func TestFrameHandlerSkipsInvalidFrames(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "status", 0, config.Names{}, zerolog.Nop())
	defer p.Close()
	handler := p.FrameHandler()

	handler(statusFrame(t, false))
	handler(statusFrame(t, true))
	require.Eventually(t, func() bool { return len(client.Messages()) == 1 }, time.Second, time.Millisecond)

	var msg Message
	require.NoError(t, json.Unmarshal(client.Messages()[0].payload, &msg))
	require.True(t, msg.Valid)
}

func TestFrameHandlerDoesNotWaitForBroker(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{token: &fakeToken{release: release}}
	p := NewPublisher(client, "status", 0, config.Names{}, zerolog.Nop())
	handler := p.FrameHandler()
	frame := statusFrame(t, true)

	returned := make(chan struct{})
	go func() {
		// One frame is held by the stalled publish, the rest fill and overflow the queue
		for i := 0; i < QueueSize+5; i++ {
			handler(frame)
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("frame handler blocked on the broker")
	}

	close(release)
	require.Eventually(t, func() bool { return len(client.Messages()) >= 1 }, time.Second, time.Millisecond)
	p.Close()
	require.LessOrEqual(t, len(client.Messages()), QueueSize+1)
	require.True(t, client.Disconnected())
}

func TestClientID(t *testing.T) {
	id := ClientID()
	require.True(t, strings.HasPrefix(id, "matrixctl-"))
	require.Equal(t, id, ClientID())
}

func TestNewPublisherPanicsOnNil(t *testing.T) {
	require.Panics(t, func() {
		NewPublisher(nil, "status", 0, config.Names{}, zerolog.Nop())
	})
}
