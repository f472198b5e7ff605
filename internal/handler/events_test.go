package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarylog/internal/broadcast"
	"librarylog/internal/library"
)

type sseMessage struct {
	ID    string
	Event string
	Data  string
}

// openStream connects to the event endpoint and parses messages in the
// background.
func openStream(t *testing.T, srv *httptest.Server, query string, header ...string) <-chan sseMessage {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/library/events?token="+viewToken+query, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	t.Cleanup(func() { _ = resp.Body.Close() })

	out := make(chan sseMessage, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		var msg sseMessage
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				if msg.Event != "" || msg.Data != "" {
					out <- msg
				}
				msg = sseMessage{}
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				msg.ID = value
			case "event":
				msg.Event = value
			case "data":
				msg.Data += strings.TrimSpace(value)
			}
		}
	}()
	return out
}

func next(t *testing.T, ch <-chan sseMessage) sseMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "stream closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseMessage{}
	}
}

func TestEvents_StreamsChanges(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	stream := openStream(t, srv, "")
	ready := next(t, stream)
	assert.Equal(t, "ready", ready.Event)
	assert.Equal(t, "0", ready.ID)

	visit, err := e.svc.SignIn(context.Background(), "10022")
	require.NoError(t, err)

	msg := next(t, stream)
	assert.Equal(t, broadcast.KindSignIn, msg.Event)
	assert.Equal(t, "1", msg.ID)

	var evt struct {
		Version uint64         `json:"version"`
		Kind    string         `json:"kind"`
		Data    library.Change `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Data), &evt))
	assert.Equal(t, uint64(1), evt.Version)
	assert.Equal(t, int64(1), evt.Data.SignedInCount)
	require.NotNil(t, evt.Data.Visit)
	assert.Equal(t, visit.ID, evt.Data.Visit.ID)
	assert.Equal(t, "Ada Lovelace", evt.Data.Visit.Person.Name)

	_, err = e.svc.SignOut(context.Background(), "10022")
	require.NoError(t, err)
	msg = next(t, stream)
	assert.Equal(t, broadcast.KindSignOut, msg.Event)
	assert.Equal(t, "2", msg.ID)
}

func TestEvents_ResumeReplaysMissed(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	_, err := e.svc.SignIn(ctx, "10022")
	require.NoError(t, err)
	_, err = e.svc.SignIn(ctx, "10023")
	require.NoError(t, err)
	_, err = e.svc.SignOut(ctx, "10022")
	require.NoError(t, err)

	stream := openStream(t, srv, "", "Last-Event-ID", "1")
	assert.Equal(t, "ready", next(t, stream).Event)
	assert.Equal(t, "2", next(t, stream).ID)
	assert.Equal(t, "3", next(t, stream).ID)
}

func TestEvents_ResyncWhenAhead(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	// a viewer that saw version 9 before a restart
	stream := openStream(t, srv, "&since=9")
	assert.Equal(t, "ready", next(t, stream).Event)
	assert.Equal(t, broadcast.KindResync, next(t, stream).Event)
}

func TestEvents_Gated(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/library/events", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
