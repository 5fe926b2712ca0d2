package changefeed

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(id string) model.Appointment {
	return model.Appointment{ID: id, Status: model.StatusConfirmed}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(4, discardLogger(), nil)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Publish(context.Background(), NewEvent(KindInsert, snapshot("appt-1")))

	for _, s := range []*Subscription{a, b} {
		select {
		case e := <-s.C():
			assert.Equal(t, "appt-1", e.AppointmentID)
			assert.Equal(t, KindInsert, e.Kind)
			assert.Equal(t, CollectionAppointments, e.Collection)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	hub.Unsubscribe(a)
	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.Subscribers())
	_, ok := <-a.C()
	assert.False(t, ok)
	assert.False(t, a.Dropped())
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(1, discardLogger(), nil)
	slow := hub.Subscribe()

	hub.Publish(context.Background(), NewEvent(KindInsert, snapshot("appt-1")))
	hub.Publish(context.Background(), NewEvent(KindUpdate, snapshot("appt-1")))

	require.Equal(t, 0, hub.Subscribers())
	e, ok := <-slow.C()
	require.True(t, ok, "buffered event is still readable")
	assert.Equal(t, KindInsert, e.Kind)
	_, ok = <-slow.C()
	assert.False(t, ok)
	assert.True(t, slow.Dropped())
}

func TestHubClose(t *testing.T) {
	hub := NewHub(1, discardLogger(), nil)
	s := hub.Subscribe()
	hub.Close()
	_, ok := <-s.C()
	assert.False(t, ok)

	late := hub.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestRedisBridgeRelaysToLocalHub(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewHub(4, discardLogger(), nil)
	sub := hub.Subscribe()
	bridge := NewRedisBridge(rdb, "", hub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bridge.Subscribe(ctx))
	go func() { _ = bridge.Run(ctx) }()

	bridge.Publish(ctx, NewEvent(KindUpdate, snapshot("appt-9")))

	select {
	case e := <-sub.C():
		assert.Equal(t, "appt-9", e.AppointmentID)
		assert.Equal(t, KindUpdate, e.Kind)
		assert.Equal(t, model.StatusConfirmed, e.Snapshot.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("event not relayed through redis")
	}
	require.NoError(t, bridge.ReadyCheck(ctx))
}

func TestRedisBridgeFallsBackLocally(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	hub := NewHub(4, discardLogger(), nil)
	sub := hub.Subscribe()
	bridge := NewRedisBridge(rdb, "", hub, discardLogger())

	bridge.Publish(context.Background(), NewEvent(KindInsert, snapshot("appt-2")))

	select {
	case e := <-sub.C():
		assert.Equal(t, "appt-2", e.AppointmentID)
	default:
		t.Fatal("event should be delivered locally when redis is down")
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := NewHub(4, discardLogger(), nil)
	srv := httptest.NewServer(NewHandler(hub, discardLogger(), nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(context.Background(), NewEvent(KindInsert, snapshot("appt-3")))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "appt-3", got.AppointmentID)
	assert.Equal(t, KindInsert, got.Kind)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(4, discardLogger(), nil)
	srv := httptest.NewServer(NewHandler(hub, discardLogger(), []string{"https://shop.example"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
