package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/gorilla/websocket"
)

const (
	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10

	intentGuilds                = 1 << 0
	intentGuildMessages         = 1 << 9
	intentGuildMessageReactions = 1 << 10
	intentMessageContent        = 1 << 15

	gatewayIntents = intentGuilds | intentGuildMessages | intentGuildMessageReactions | intentMessageContent

	writeWait         = 10 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second

	commandPrefix = "!"
)

var errReconnect = errors.New("gateway requested reconnect")

// ReadyHandler corre tras cada READY con el id del bot.
type ReadyHandler func(ctx context.Context, selfID string)

// Gateway es el cliente websocket del gateway de Discord.
// Implementa ports.EventSource y ports.CommandSource.
type Gateway struct {
	url   string
	token string

	mu       sync.RWMutex
	selfID   string
	seq      *int64
	cast     []ports.VoteHandler
	retract  []ports.VoteHandler
	commands []ports.CommandHandler
	ready    []ReadyHandler

	writeMu sync.Mutex
}

// NewGateway crea el gateway. Si url está vacío usa el de producción.
func NewGateway(url, token string) *Gateway {
	if url == "" {
		url = defaultGatewayURL
	}
	return &Gateway{url: url, token: token}
}

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type readyData struct {
	User apiUser `json:"user"`
}

type reactionData struct {
	UserID    string   `json:"user_id"`
	ChannelID string   `json:"channel_id"`
	MessageID string   `json:"message_id"`
	Emoji     apiEmoji `json:"emoji"`
	Member    *struct {
		User apiUser `json:"user"`
	} `json:"member"`
}

type messageData struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	Content   string  `json:"content"`
	Author    apiUser `json:"author"`
	Member    *struct {
		Roles []string `json:"roles"`
	} `json:"member"`
}

// OnVoteCast registra un handler para MESSAGE_REACTION_ADD.
func (g *Gateway) OnVoteCast(h ports.VoteHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cast = append(g.cast, h)
}

// OnVoteRetract registra un handler para MESSAGE_REACTION_REMOVE.
func (g *Gateway) OnVoteRetract(h ports.VoteHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retract = append(g.retract, h)
}

// OnCommand registra un handler para mensajes que empiezan con "!".
func (g *Gateway) OnCommand(h ports.CommandHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commands = append(g.commands, h)
}

// OnReady registra un callback que corre tras cada READY, incluida cada
// reconexión. Sirve para resincronizar los votos perdidos mientras tanto.
func (g *Gateway) OnReady(f ReadyHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = append(g.ready, f)
}

// Run mantiene la sesión abierta, reconectando con backoff exponencial,
// hasta que se cancele ctx.
func (g *Gateway) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		started := time.Now()
		err := g.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxReconnectDelay {
			delay = reconnectDelay
		}
		slog.Warn("gateway disconnected", "err", err, "retry_in", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session abre una conexión, se identifica y lee eventos hasta que falle.
func (g *Gateway) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("discord.Gateway: dial: %w", err)
	}
	defer conn.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		conn.Close()
	}()

	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("discord.Gateway: read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("discord.Gateway: expected hello, got op %d", hello.Op)
	}
	var h helloData
	if err := json.Unmarshal(hello.D, &h); err != nil {
		return fmt.Errorf("discord.Gateway: decode hello: %w", err)
	}

	if err := g.identify(conn); err != nil {
		return fmt.Errorf("discord.Gateway: identify: %w", err)
	}
	go g.heartbeatLoop(sctx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond)

	for {
		var p gatewayPayload
		if err := conn.ReadJSON(&p); err != nil {
			return fmt.Errorf("discord.Gateway: read: %w", err)
		}
		if p.S != nil {
			g.setSeq(*p.S)
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(ctx, p.T, p.D)
		case opHeartbeat:
			if err := g.heartbeat(conn); err != nil {
				return fmt.Errorf("discord.Gateway: heartbeat: %w", err)
			}
		case opReconnect, opInvalidSession:
			return errReconnect
		}
	}
}

func (g *Gateway) identify(conn *websocket.Conn) error {
	d, err := json.Marshal(map[string]any{
		"token":   g.token,
		"intents": gatewayIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "wagerbot",
			"device":  "wagerbot",
		},
	})
	if err != nil {
		return err
	}
	return g.write(conn, gatewayPayload{Op: opIdentify, D: d})
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.heartbeat(conn); err != nil {
				slog.Debug("heartbeat failed", "err", err)
				return
			}
		}
	}
}

func (g *Gateway) heartbeat(conn *websocket.Conn) error {
	g.mu.RLock()
	seq := g.seq
	g.mu.RUnlock()

	d := json.RawMessage("null")
	if seq != nil {
		d = json.RawMessage(fmt.Sprintf("%d", *seq))
	}
	return g.write(conn, gatewayPayload{Op: opHeartbeat, D: d})
}

// write serializa las escrituras: gorilla no admite writers concurrentes.
func (g *Gateway) write(conn *websocket.Conn, p gatewayPayload) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(p)
}

func (g *Gateway) setSeq(s int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = &s
}

func (g *Gateway) dispatch(ctx context.Context, event string, raw json.RawMessage) {
	switch event {
	case "READY":
		var d readyData
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("bad READY payload", "err", err)
			return
		}
		g.mu.Lock()
		g.selfID = d.User.ID
		ready := append([]ReadyHandler(nil), g.ready...)
		g.mu.Unlock()
		slog.Info("gateway ready", "self_id", d.User.ID)
		for _, f := range ready {
			f(ctx, d.User.ID)
		}

	case "MESSAGE_REACTION_ADD", "MESSAGE_REACTION_REMOVE":
		var d reactionData
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("bad reaction payload", "event", event, "err", err)
			return
		}
		g.mu.RLock()
		self := g.selfID
		handlers := g.cast
		if event == "MESSAGE_REACTION_REMOVE" {
			handlers = g.retract
		}
		handlers = append([]ports.VoteHandler(nil), handlers...)
		g.mu.RUnlock()

		if d.UserID == self || (d.Member != nil && d.Member.User.Bot) {
			return
		}
		ev := domain.VoteEvent{
			ParticipantID: d.UserID,
			RawToken:      d.Emoji.rawToken(),
			WagerID:       d.MessageID,
			At:            time.Now(),
		}
		for _, h := range handlers {
			h(ctx, ev)
		}

	case "MESSAGE_CREATE":
		var d messageData
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("bad message payload", "err", err)
			return
		}
		if d.Author.Bot || !strings.HasPrefix(d.Content, commandPrefix) {
			return
		}
		actor := domain.Actor{ID: d.Author.ID}
		if d.Member != nil {
			actor.Roles = d.Member.Roles
		}
		cmd := ports.Command{Venue: d.ChannelID, MessageID: d.ID, Actor: actor, Content: d.Content}

		g.mu.RLock()
		handlers := append([]ports.CommandHandler(nil), g.commands...)
		g.mu.RUnlock()
		for _, h := range handlers {
			h(ctx, cmd)
		}
	}
}

var (
	_ ports.EventSource   = (*Gateway)(nil)
	_ ports.CommandSource = (*Gateway)(nil)
)
