package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isinFlow/internal/domain/model"
)

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m wireMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestBroadcaster_SnapshotThenChanges(t *testing.T) {
	records := []model.BondRecord{{ID: "a", ISIN: "XS0000000001", Status: model.StatusScraped}}
	b := NewWebSocketBroadcaster(func() []model.BondRecord { return records }, nil)

	srv := httptest.NewServer(http.HandlerFunc(b.Handler()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	m := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, m.Type)
	var snap []model.BondRecord
	require.NoError(t, json.Unmarshal(m.Data, &snap))
	assert.Equal(t, records, snap)

	rec := model.BondRecord{ID: "a", Status: model.StatusTriggered}
	b.BroadcastChange(model.StoreChange{Kind: model.ChangeUpsert, ID: "a", Record: &rec})
	m = readMessage(t, conn)
	assert.Equal(t, TypeRecord, m.Type)
	var got model.BondRecord
	require.NoError(t, json.Unmarshal(m.Data, &got))
	assert.Equal(t, model.StatusTriggered, got.Status)

	b.BroadcastChange(model.StoreChange{Kind: model.ChangeDelete, ID: "a"})
	m = readMessage(t, conn)
	assert.Equal(t, TypeDelete, m.Type)
	assert.JSONEq(t, `{"id":"a"}`, string(m.Data))

	b.BroadcastStatus(model.SyncStatus{Connected: false, ConsecutiveFailures: 3})
	m = readMessage(t, conn)
	assert.Equal(t, TypeStatus, m.Type)

	// clients hold their own filter, so the unfiltered roll-up is never pushed
	b.BroadcastAggregates([]model.BookrunnerAggregate{{Name: "J.P. Morgan", DealCount: 1, MarketSharePercent: 100}})
	m = readMessage(t, conn)
	assert.Equal(t, TypeBookrunnersInvalidated, m.Type)
	assert.Equal(t, "null", string(m.Data))
}

func TestBroadcaster_ChangeDuringSnapshotIsNotLost(t *testing.T) {
	records := []model.BondRecord{{ID: "a", ISIN: "XS0000000001", Status: model.StatusScraped}}
	started := make(chan struct{})
	release := make(chan struct{})
	b := NewWebSocketBroadcaster(func() []model.BondRecord {
		close(started)
		<-release
		return records
	}, nil)

	srv := httptest.NewServer(http.HandlerFunc(b.Handler()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	<-started
	rec := model.BondRecord{ID: "b", ISIN: "XS0000000002", Status: model.StatusScraped}
	go b.BroadcastChange(model.StoreChange{Kind: model.ChangeUpsert, ID: "b", Record: &rec, Inserted: true})
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, TypeSnapshot, readMessage(t, conn).Type)
	m := readMessage(t, conn)
	assert.Equal(t, TypeRecord, m.Type)
	var got model.BondRecord
	require.NoError(t, json.Unmarshal(m.Data, &got))
	assert.Equal(t, "b", got.ID)
}

func TestBroadcaster_StalledClientDoesNotBlock(t *testing.T) {
	b := NewWebSocketBroadcaster(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.Handler()))
	defer srv.Close()

	// never reads
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 5*time.Millisecond)

	rec := model.BondRecord{ID: "a", Issuer: strings.Repeat("x", 64<<10)}
	start := time.Now()
	for i := 0; i < 2*sendBuffer+200; i++ {
		b.BroadcastChange(model.StoreChange{Kind: model.ChangeUpsert, ID: "a", Record: &rec})
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Eventually(t, func() bool { return b.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestBroadcaster_DropsClosedClients(t *testing.T) {
	b := NewWebSocketBroadcaster(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.Handler()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return b.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
