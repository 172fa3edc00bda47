package publish

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermo-poller/internal/model"
	"thermo-poller/internal/monitor"
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeTransport struct {
	sent         []message
	handlers     map[string]func(string, []byte)
	err          error
	disconnected int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(string, []byte))}
}

func (f *fakeTransport) Publish(topic string, _ byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Disconnect() { f.disconnected++ }

var at = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func TestTopics(t *testing.T) {
	require.Equal(t, "thermo/variables/t1", VariableTopic("thermo", "t1"))
	require.Equal(t, "thermo/errors/t1", ErrorTopic("thermo", "t1"))
	require.Equal(t, "thermo/status", StatusTopic("thermo"))
	require.Equal(t, "thermo/zones/z1", ZoneTopic("thermo", "z1"))
	require.Equal(t, "thermo/ack", AckTopic("thermo"))
}

func TestPublishEvent(t *testing.T) {
	ft := newFakeTransport()
	p := newPublisher(Config{TopicPrefix: "plant/"}, ft, nil)

	require.NoError(t, p.PublishEvent(model.ValueUpdated("t1", 21.5, 215, at)))
	require.NoError(t, p.PublishEvent(model.VariableError("t1", "timeout", at)))
	require.NoError(t, p.PublishEvent(model.ConnectionState(true, "connected", at)))
	require.Len(t, ft.sent, 3)

	require.Equal(t, "plant/variables/t1", ft.sent[0].topic)
	require.False(t, ft.sent[0].retained)
	var vm ValueMessage
	require.NoError(t, json.Unmarshal(ft.sent[0].payload, &vm))
	require.Equal(t, ValueMessage{ID: "t1", Value: 21.5, Raw: 215, At: at}, vm)

	require.Equal(t, "plant/errors/t1", ft.sent[1].topic)
	require.JSONEq(t, `{"id":"t1","message":"timeout","at":"2024-03-10T08:00:00Z"}`, string(ft.sent[1].payload))

	require.Equal(t, "plant/status", ft.sent[2].topic)
	require.True(t, ft.sent[2].retained)
}

func TestPublishSummaryRetainsZones(t *testing.T) {
	ft := newFakeTransport()
	p := newPublisher(Config{TopicPrefix: "thermo"}, ft, nil)
	avg := 21.0
	sum := monitor.Summary{Zones: []monitor.ZoneSummary{
		{ZoneID: "z1", Name: "Ovens", Active: 1, Total: 2, Avg: &avg},
		{ZoneID: "z2", Name: "Cold"},
	}}
	require.NoError(t, p.PublishSummary(sum))
	require.Len(t, ft.sent, 2)
	require.Equal(t, "thermo/zones/z1", ft.sent[0].topic)
	require.True(t, ft.sent[0].retained)

	var z monitor.ZoneSummary
	require.NoError(t, json.Unmarshal(ft.sent[0].payload, &z))
	require.Equal(t, 21.0, *z.Avg)
}

func TestPublishErrorWrapped(t *testing.T) {
	ft := newFakeTransport()
	ft.err = errors.New("not connected")
	p := newPublisher(Config{TopicPrefix: "thermo"}, ft, nil)
	err := p.PublishEvent(model.ConnectionState(false, "", at))
	require.ErrorIs(t, err, ft.err)
	require.Contains(t, err.Error(), "thermo/status")
}

func TestSubscribeAcks(t *testing.T) {
	ft := newFakeTransport()
	p := newPublisher(Config{TopicPrefix: "thermo"}, ft, nil)
	acks := make(chan string, 1)
	require.NoError(t, p.SubscribeAcks(acks))

	h := ft.handlers["thermo/ack"]
	require.NotNil(t, h)
	h("thermo/ack", []byte(" zone:z1 \n"))
	h("thermo/ack", []byte("dropped-when-full"))
	h("thermo/ack", []byte("   "))
	require.Equal(t, "zone:z1", <-acks)
	select {
	case id := <-acks:
		t.Fatalf("unexpected ack %q", id)
	default:
	}
}

func TestCloseOnce(t *testing.T) {
	ft := newFakeTransport()
	p := newPublisher(Config{}, ft, nil)
	p.Close()
	p.Close()
	require.Equal(t, 1, ft.disconnected)
	require.Error(t, p.PublishEvent(model.ConnectionState(true, "", at)))
}
