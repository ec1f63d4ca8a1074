package app

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlock/models"
)

const updateTopic = "$aws/things/door/shadow/update"

type coordinatorHarness struct {
	c       *Coordinator
	pub     *fakePublisher
	cycles  chan Cycle
	settled *mailbox[models.LockState]
	events  chan models.LockEvent
}

func startCoordinator(t *testing.T, autoAck bool, ackTimeout, relockDelay time.Duration) *coordinatorHarness {
	t.Helper()
	h := &coordinatorHarness{
		pub:     newFakePublisher(autoAck),
		cycles:  make(chan Cycle, 1),
		settled: newMailbox[models.LockState](),
		events:  make(chan models.LockEvent, 32),
	}
	h.c = NewCoordinator("door", h.pub, ackTimeout, relockDelay, h.cycles, h.settled,
		func(ev models.LockEvent) { h.events <- ev })

	tokens := []string{"000101", "000202", "000303", "000404"}
	h.c.token = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *coordinatorHarness) waitSettled(t *testing.T) models.LockState {
	t.Helper()
	var s models.LockState
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = h.settled.TryTake()
		return ok
	}, 2*time.Second, time.Millisecond)
	return s
}

func TestCoordinator_OpenCycleWithAcks(t *testing.T) {
	h := startCoordinator(t, true, time.Second, 60*time.Millisecond)

	h.cycles <- Cycle{Request: Request{Version: 1, State: models.LockOpen}}

	first := h.pub.next(t, time.Second)
	assert.Equal(t, updateTopic, first.topic)
	assert.Equal(t, `{"state":{"reported":{"lockState":1}},"clientToken":"000101"}`, first.payload)

	second := h.pub.next(t, time.Second)
	assert.Equal(t, updateTopic, second.topic)
	assert.Equal(t, `{"state":{"desired":{"lockState":0},"reported":{"lockState":0}},"clientToken":"000202"}`, second.payload)
	assert.GreaterOrEqual(t, second.at.Sub(first.at), 60*time.Millisecond, "relock delay between documents")

	assert.Equal(t, models.LockClosed, h.waitSettled(t))
}

func TestCoordinator_AckTimeoutDoesNotBlockSecondPublish(t *testing.T) {
	ackTimeout := 40 * time.Millisecond
	relock := 20 * time.Millisecond
	h := startCoordinator(t, false, ackTimeout, relock)

	h.cycles <- Cycle{Request: Request{Version: 1, State: models.LockOpen}}

	first := h.pub.next(t, time.Second)
	second := h.pub.next(t, time.Second)
	assert.Contains(t, first.payload, `"reported":{"lockState":1}`)
	assert.Contains(t, second.payload, `"desired":{"lockState":0}`)
	assert.GreaterOrEqual(t, second.at.Sub(first.at), ackTimeout+relock)

	h.waitSettled(t)

	var timeouts int
	for len(h.events) > 0 {
		if ev := <-h.events; ev.Kind == models.EventAckTimeout {
			timeouts++
		}
	}
	assert.Equal(t, 2, timeouts)
}

func TestCoordinator_ClosedCycleReportsClosed(t *testing.T) {
	h := startCoordinator(t, true, time.Second, time.Hour)

	h.cycles <- Cycle{Request: Request{Version: 2, State: models.LockClosed}}

	doc := h.pub.next(t, time.Second)
	assert.Equal(t, `{"state":{"reported":{"lockState":0}},"clientToken":"000101"}`, doc.payload)
	h.pub.none(t, 30*time.Millisecond)
	h.waitSettled(t)
}

func TestCoordinator_FaultedCyclePublishesNothing(t *testing.T) {
	h := startCoordinator(t, true, time.Second, time.Millisecond)

	h.cycles <- Cycle{
		Request: Request{Version: 1, State: models.LockOpen},
		Fault:   &ActuationFault{Step: "unlock", Err: errors.New("gpio")},
	}

	h.pub.none(t, 50*time.Millisecond)
	_, ok := h.settled.TryTake()
	assert.False(t, ok)
}

func TestCoordinator_PublishErrorStillWaitsForAck(t *testing.T) {
	ackTimeout := 60 * time.Millisecond
	relock := 10 * time.Millisecond
	h := startCoordinator(t, true, ackTimeout, relock)
	h.pub.failNext(errors.New("not connected"))

	start := time.Now()
	h.cycles <- Cycle{Request: Request{Version: 1, State: models.LockOpen}}

	doc := h.pub.next(t, time.Second)
	assert.Contains(t, doc.payload, `"desired":{"lockState":0}`, "clearing document still sent")
	assert.GreaterOrEqual(t, doc.at.Sub(start), ackTimeout+relock, "failed publish waits out the ack timeout")
	h.waitSettled(t)
}

func TestCoordinator_LateAckDoesNotCountForNextPublish(t *testing.T) {
	ackTimeout := 60 * time.Millisecond
	h := startCoordinator(t, false, ackTimeout, 5*time.Millisecond)
	h.pub.holdAcks()

	h.cycles <- Cycle{Request: Request{Version: 1, State: models.LockOpen}}

	h.pub.next(t, time.Second)
	second := h.pub.next(t, time.Second)
	time.Sleep(5 * time.Millisecond)
	h.pub.ackFor(0)()

	h.waitSettled(t)
	assert.GreaterOrEqual(t, time.Since(second.at), ackTimeout, "second document waited its full timeout")

	var timeouts int
	for len(h.events) > 0 {
		if ev := <-h.events; ev.Kind == models.EventAckTimeout {
			timeouts++
		}
	}
	assert.Equal(t, 2, timeouts)
}

func TestTickToken(t *testing.T) {
	token := TickToken(time.Now().Add(-1234567 * time.Millisecond))
	tok := token()
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), tok)
	assert.GreaterOrEqual(t, tok, "234567")

	fresh := TickToken(time.Now())()
	assert.Regexp(t, `^\d{6}$`, fresh)
}
