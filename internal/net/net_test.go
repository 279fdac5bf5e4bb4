package net

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	stdnet "net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenspec/internal/state"
)

type fakeDoc struct{ w, h int }

func (d fakeDoc) ExportRenderedImage() (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, d.w, d.h)), nil
}

func (d fakeDoc) Size() (int, int) { return d.w, d.h }

var (
	arrow = state.Arrow{StartX: 1, StartY: 2, EndX: 30, EndY: 40, Color: "#ff0000", StrokeSize: 2}
	label = state.Text{X: 5, Y: 9, Text: "Total", Color: "#000000", StrokeSize: 3}
)

func newShare(t *testing.T, initial ...state.Annotation) (*state.Emitter, *Hub, *httptest.Server) {
	t.Helper()
	emitter := state.NewEmitter()
	hub := NewHub("screen-1", emitter, initial, nil)
	srv := httptest.NewServer(NewServer(hub, fakeDoc{40, 30}, "Cart", nil).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return emitter, hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url, err := EventsURL(srv.URL)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOp(t *testing.T, conn *websocket.Conn) state.Op {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var op state.Op
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &op))
	return op
}

func TestHubSendsSnapshotThenOps(t *testing.T) {
	emitter, hub, srv := newShare(t, arrow)
	conn := dial(t, srv)

	first := readOp(t, conn)
	assert.Equal(t, state.OpReplace, first.Type)
	assert.Equal(t, "screen-1", first.ScreenID)
	assert.Equal(t, []state.Annotation{arrow}, []state.Annotation(first.Annotations))

	emitter.Emit(state.Op{Type: state.OpAppend, Annotation: label})
	next := readOp(t, conn)
	assert.Equal(t, state.OpAppend, next.Type)
	assert.Equal(t, label, next.Annotation)
	assert.Equal(t, emitter.Site(), next.Site)

	assert.Equal(t, []state.Annotation{arrow, label}, hub.Annotations())
	assert.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestLateViewerSeesCurrentList(t *testing.T) {
	emitter, _, srv := newShare(t)
	emitter.Emit(state.Op{Type: state.OpAppend, Annotation: arrow})
	emitter.Emit(state.Op{Type: state.OpAppend, Annotation: label})
	emitter.Emit(state.Op{Type: state.OpUndo})

	conn := dial(t, srv)
	first := readOp(t, conn)
	assert.Equal(t, state.OpReplace, first.Type)
	assert.Equal(t, []state.Annotation{arrow}, []state.Annotation(first.Annotations))
	assert.Equal(t, uint64(3), first.Lamport)
}

func TestFollowMirrorsShare(t *testing.T) {
	emitter, _, srv := newShare(t, arrow)
	replica := state.NewReplica(nil)
	changed := make(chan state.Op, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, srv.URL, replica, func(op state.Op) { changed <- op }, nil) }()

	select {
	case op := <-changed:
		assert.Equal(t, state.OpReplace, op.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
	}
	emitter.Emit(state.Op{Type: state.OpAppend, Annotation: label})
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("append not mirrored")
	}
	assert.Equal(t, []state.Annotation{arrow, label}, replica.Annotations())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}

func TestServerEndpoints(t *testing.T) {
	_, _, srv := newShare(t, arrow)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var info Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, "screen-1", info.ScreenID)
	assert.Equal(t, "Cart", info.Title)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 1, info.Annotations)

	resp, err = http.Get(srv.URL + "/screen.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dy())

	resp, err = http.Get(srv.URL + "/annotations")
	require.NoError(t, err)
	var list state.List
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Equal(t, state.List{arrow}, list)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClosedHubDisconnectsViewers(t *testing.T) {
	_, hub, srv := newShare(t)
	conn := dial(t, srv)
	readOp(t, conn)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestEventsURL(t *testing.T) {
	tests := map[string]string{
		"192.168.1.4:8765":          "ws://192.168.1.4:8765/ws",
		"http://host:1/":            "ws://host:1/ws",
		"https://share.example.com": "wss://share.example.com/ws",
		"ws://host:2/ws":            "ws://host:2/ws",
	}
	for in, want := range tests {
		got, err := EventsURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := EventsURL("ftp://host")
	assert.Error(t, err)
}

func TestPeerFromEntry(t *testing.T) {
	p, ok := peerFromEntry(&mdns.ServiceEntry{
		Name:       "laptop." + ServiceType + ".local.",
		AddrV4:     stdnet.IPv4(10, 0, 0, 7),
		Port:       8765,
		InfoFields: []string{"screen=abc", "title=Login"},
	})
	require.True(t, ok)
	assert.Equal(t, Peer{Instance: "laptop", Addr: "10.0.0.7:8765", ScreenID: "abc", Title: "Login"}, p)

	_, ok = peerFromEntry(&mdns.ServiceEntry{Port: 1})
	assert.False(t, ok)
}

func TestLANAddr(t *testing.T) {
	ip := LANAddr()
	require.NotNil(t, ip.To4())
	assert.False(t, ip.IsUnspecified())
	assert.True(t, strings.HasPrefix(ShareURL(8765), "http://"))
	assert.True(t, strings.HasSuffix(ShareURL(8765), ":8765/"))

	assert.Equal(t, "http://10.1.2.3:9000/", shareURL(stdnet.IPv4(10, 1, 2, 3), 9000))
}
