package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"smartlock/models"
)

type published struct {
	topic   string
	payload string
	at      time.Time
}

type fakePublisher struct {
	mu      sync.Mutex
	docs    []published
	autoAck bool
	hold    bool
	acks    []func()
	err     error
	out     chan published
}

func newFakePublisher(autoAck bool) *fakePublisher {
	return &fakePublisher{autoAck: autoAck, out: make(chan published, 32)}
}

func (p *fakePublisher) PublishAsync(topic string, _ byte, payload []byte, ack func()) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.err = nil
		p.mu.Unlock()
		return err
	}
	doc := published{topic: topic, payload: string(payload), at: time.Now()}
	p.docs = append(p.docs, doc)
	autoAck := p.autoAck
	if p.hold {
		p.acks = append(p.acks, ack)
	}
	p.mu.Unlock()

	p.out <- doc
	if autoAck && ack != nil {
		ack()
	}
	return nil
}

func (p *fakePublisher) failNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// holdAcks keeps every ack callback so the test decides when each fires.
func (p *fakePublisher) holdAcks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoAck = false
	p.hold = true
}

func (p *fakePublisher) ackFor(i int) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acks[i]
}

// next waits for the next published document.
func (p *fakePublisher) next(t *testing.T, timeout time.Duration) published {
	t.Helper()
	select {
	case doc := <-p.out:
		return doc
	case <-time.After(timeout):
		t.Fatalf("no document published within %s", timeout)
		return published{}
	}
}

func (p *fakePublisher) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case doc := <-p.out:
		t.Fatalf("unexpected publish: %s", doc.payload)
	case <-time.After(wait):
	}
}

type fakeDevice struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{fail: map[string]error{}}
}

func (d *fakeDevice) do(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if err, ok := d.fail[call]; ok {
		delete(d.fail, call)
		return err
	}
	return nil
}

func (d *fakeDevice) SetLock(state models.LockState) error {
	return d.do("lock:" + state.String())
}

func (d *fakeDevice) SetIndicator(on bool) error {
	return d.do(fmt.Sprintf("indicator:%t", on))
}

func (d *fakeDevice) failOn(call string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[call] = err
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type transitions struct {
	mu     sync.Mutex
	states []ControllerState
}

func (tr *transitions) observe(s ControllerState) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, s)
}

func (tr *transitions) get() []ControllerState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]ControllerState(nil), tr.states...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeTransport struct {
	*fakePublisher

	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	order        []string
	unsubscribed []string
}

func newFakeTransport(autoAck bool) *fakeTransport {
	return &fakeTransport{
		fakePublisher: newFakePublisher(autoAck),
		handlers:      map[string]mqtt.MessageHandler{},
	}
}

func (t *fakeTransport) AddSubscriptionTopic(topic string, _ byte, handler mqtt.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[topic] = handler
	t.order = append(t.order, topic)
}

func (t *fakeTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[topic]; !ok {
		return fmt.Errorf("topic '%s' is not subscribed", topic)
	}
	delete(t.handlers, topic)
	t.unsubscribed = append(t.unsubscribed, topic)
	return nil
}

// deliver plays the MQTT router: handlers run on the caller's goroutine.
func (t *fakeTransport) deliver(topic, payload string) bool {
	t.mu.Lock()
	h, ok := t.handlers[topic]
	t.mu.Unlock()
	if !ok {
		return false
	}
	h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}
