package discord_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/adapters/discord"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

// fakeGateway hace el handshake y emite los eventos dados.
func fakeGateway(t *testing.T, events ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"op":10,"d":{"heartbeat_interval":45000}}`)); err != nil {
			t.Errorf("hello: %v", err)
			return
		}

		var identify struct {
			Op int `json:"op"`
			D  struct {
				Token   string `json:"token"`
				Intents int    `json:"intents"`
			} `json:"d"`
		}
		if err := conn.ReadJSON(&identify); err != nil {
			t.Errorf("identify: %v", err)
			return
		}
		assert.Equal(t, 2, identify.Op)
		assert.Equal(t, "secret", identify.D.Token)
		assert.NotZero(t, identify.D.Intents&(1<<10), "reaction intent")

		for _, ev := range events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
				t.Errorf("write event: %v", err)
				return
			}
		}
		// mantener abierta hasta que el cliente cierre
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGateway_DispatchesVotesAndCommands(t *testing.T) {
	srv := fakeGateway(t,
		`{"op":0,"t":"READY","s":1,"d":{"user":{"id":"bot"}}}`,
		`{"op":0,"t":"MESSAGE_REACTION_ADD","s":2,"d":{"user_id":"bot","channel_id":"c1","message_id":"m1","emoji":{"id":null,"name":"🔵"}}}`,
		`{"op":0,"t":"MESSAGE_REACTION_ADD","s":3,"d":{"user_id":"p1","channel_id":"c1","message_id":"m1","emoji":{"id":"42","name":"party"}}}`,
		`{"op":0,"t":"MESSAGE_REACTION_REMOVE","s":4,"d":{"user_id":"p1","channel_id":"c1","message_id":"m1","emoji":{"id":null,"name":"🔵"}}}`,
		`{"op":0,"t":"MESSAGE_CREATE","s":5,"d":{"id":"x1","channel_id":"c1","content":"just chatting","author":{"id":"p2"}}}`,
		`{"op":0,"t":"MESSAGE_CREATE","s":6,"d":{"id":"x2","channel_id":"c1","content":"!top","author":{"id":"other-bot","bot":true}}}`,
		`{"op":0,"t":"MESSAGE_CREATE","s":7,"d":{"id":"x3","channel_id":"c1","content":"!lock m1","author":{"id":"admin"},"member":{"roles":["mods"]}}}`,
	)
	defer srv.Close()

	g := discord.NewGateway(wsURL(srv), "secret")

	ready := make(chan string, 1)
	casts := make(chan domain.VoteEvent, 4)
	retracts := make(chan domain.VoteEvent, 4)
	commands := make(chan ports.Command, 4)
	g.OnReady(func(_ context.Context, selfID string) { ready <- selfID })
	g.OnVoteCast(func(_ context.Context, ev domain.VoteEvent) { casts <- ev })
	g.OnVoteRetract(func(_ context.Context, ev domain.VoteEvent) { retracts <- ev })
	g.OnCommand(func(_ context.Context, cmd ports.Command) { commands <- cmd })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Equal(t, "bot", receive(t, ready))

	cast := receive(t, casts)
	assert.Equal(t, "p1", cast.ParticipantID, "the bot's own reaction is skipped")
	assert.Equal(t, "party:42", cast.RawToken)
	assert.Equal(t, "m1", cast.WagerID)

	retract := receive(t, retracts)
	assert.Equal(t, "🔵", retract.RawToken)

	cmd := receive(t, commands)
	assert.Equal(t, "!lock m1", cmd.Content, "plain chat and bot messages are skipped")
	assert.Equal(t, "c1", cmd.Venue)
	assert.Equal(t, domain.Actor{ID: "admin", Roles: []string{"mods"}}, cmd.Actor)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	var zero T
	return zero
}
