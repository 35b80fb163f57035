// Package discord implementa la plataforma sobre Discord: REST para
// anuncios, reacciones y DMs, y el gateway websocket para los eventos.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase = "https://discord.com/api/v10"

	// Rate limits al ~80% de los documentados.
	// Global: 50 req/s → 40/s
	globalRatePerSec = 40
	// Reacciones: 1 cada 250ms por canal → 3/s para todo el bot
	reactionRatePerSec = 3

	// Máximo de usuarios por página en GET .../reactions/{emoji}
	reactionPageSize = 100

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// NoticeTexter convierte un aviso en el texto del DM.
type NoticeTexter interface {
	NoticeText(n domain.Notice) string
}

// Client es el cliente REST de Discord con rate limiting y retries.
// Implementa ports.Platform y ports.Notifier.
type Client struct {
	http         *http.Client
	base         string
	token        string
	texts        NoticeTexter
	limiter      *rate.Limiter
	reactLimiter *rate.Limiter

	mu         sync.RWMutex
	selfID     string
	dmChannels map[string]string // userID → canal DM
}

// NewClient crea el cliente. Si base está vacío usa la API de producción.
func NewClient(token, base string, texts NoticeTexter) *Client {
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		base:         base,
		token:        token,
		texts:        texts,
		limiter:      rate.NewLimiter(globalRatePerSec, 10),
		reactLimiter: rate.NewLimiter(reactionRatePerSec, 2),
		dmChannels:   make(map[string]string),
	}
}

// --- tipos de la API ---

type apiUser struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type apiEmoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiReaction struct {
	Count int      `json:"count"`
	Emoji apiEmoji `json:"emoji"`
}

type apiMessage struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channel_id"`
	Content   string        `json:"content"`
	Reactions []apiReaction `json:"reactions"`
}

type apiChannel struct {
	ID string `json:"id"`
}

// rawToken devuelve el token tal como lo usa la API de reacciones:
// "name:id" para emojis custom, el carácter unicode si no.
func (e apiEmoji) rawToken() string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

// --- identidad ---

// Me consulta el usuario del bot y lo recuerda para excluir sus reacciones.
func (c *Client) Me(ctx context.Context) (string, error) {
	var u apiUser
	if err := c.do(ctx, c.limiter, http.MethodGet, c.base+"/users/@me", nil, &u); err != nil {
		return "", &domain.PlatformError{Op: "me", Err: err}
	}
	c.SetSelfID(u.ID)
	return u.ID, nil
}

// SetSelfID fija el id del bot (lo informa el READY del gateway).
func (c *Client) SetSelfID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfID = id
}

func (c *Client) self() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// --- ports.Platform ---

// PostAnnouncement publica el anuncio y siembra las reacciones de cada opción.
// Sembrar es best-effort: si falla el anuncio sigue siendo válido.
func (c *Client) PostAnnouncement(ctx context.Context, channelID string, a ports.Announcement) (string, error) {
	var msg apiMessage
	err := c.do(ctx, c.limiter, http.MethodPost, c.channelURL(channelID, "/messages"),
		map[string]string{"content": a.Content}, &msg)
	if err != nil {
		return "", &domain.PlatformError{Op: "post_announcement", Err: err}
	}

	for _, tok := range a.Tokens {
		u := c.channelURL(channelID, "/messages/"+msg.ID+"/reactions/"+url.PathEscape(tok)+"/@me")
		if err := c.do(ctx, c.reactLimiter, http.MethodPut, u, nil, nil); err != nil {
			slog.Warn("seed reaction failed", "message_id", msg.ID, "token", tok, "err", err)
		}
	}
	return msg.ID, nil
}

// EditAnnouncement reemplaza el contenido del mensaje.
func (c *Client) EditAnnouncement(ctx context.Context, channelID, messageID string, a ports.Announcement) error {
	err := c.do(ctx, c.limiter, http.MethodPatch, c.channelURL(channelID, "/messages/"+messageID),
		map[string]string{"content": a.Content}, nil)
	if err != nil {
		return &domain.PlatformError{Op: "edit_announcement", Err: err}
	}
	return nil
}

// RemoveVoteMarker borra la reacción rawToken del usuario.
func (c *Client) RemoveVoteMarker(ctx context.Context, channelID, messageID, userID, rawToken string) error {
	u := c.channelURL(channelID, "/messages/"+messageID+"/reactions/"+url.PathEscape(rawToken)+"/"+userID)
	if err := c.do(ctx, c.reactLimiter, http.MethodDelete, u, nil, nil); err != nil {
		return &domain.PlatformError{Op: "remove_marker", Err: err}
	}
	return nil
}

// FetchVoteMarkers devuelve raw token → usuarios para todas las reacciones
// del mensaje, paginando y excluyendo al bot.
func (c *Client) FetchVoteMarkers(ctx context.Context, channelID, messageID string) (map[string][]string, error) {
	var msg apiMessage
	if err := c.do(ctx, c.limiter, http.MethodGet, c.channelURL(channelID, "/messages/"+messageID), nil, &msg); err != nil {
		return nil, &domain.PlatformError{Op: "fetch_markers", Err: err}
	}

	self := c.self()
	markers := make(map[string][]string, len(msg.Reactions))
	for _, r := range msg.Reactions {
		tok := r.Emoji.rawToken()
		users, err := c.reactionUsers(ctx, channelID, messageID, tok)
		if err != nil {
			return nil, &domain.PlatformError{Op: "fetch_markers", Err: err}
		}
		for _, u := range users {
			if u.ID == self || u.Bot {
				continue
			}
			markers[tok] = append(markers[tok], u.ID)
		}
	}
	return markers, nil
}

func (c *Client) reactionUsers(ctx context.Context, channelID, messageID, tok string) ([]apiUser, error) {
	var all []apiUser
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", reactionPageSize))
		if after != "" {
			q.Set("after", after)
		}
		u := c.channelURL(channelID, "/messages/"+messageID+"/reactions/"+url.PathEscape(tok)) + "?" + q.Encode()

		var page []apiUser
		if err := c.do(ctx, c.limiter, http.MethodGet, u, nil, &page); err != nil {
			return nil, fmt.Errorf("reactions %s: %w", tok, err)
		}
		all = append(all, page...)
		if len(page) < reactionPageSize {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}

// SendMessage publica un mensaje de texto en el canal.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	err := c.do(ctx, c.limiter, http.MethodPost, c.channelURL(channelID, "/messages"),
		map[string]string{"content": content}, nil)
	if err != nil {
		return &domain.PlatformError{Op: "send_message", Err: err}
	}
	return nil
}

// --- ports.Notifier ---

// Notify envía el aviso por DM. Los usuarios con DMs cerrados devuelven error.
func (c *Client) Notify(ctx context.Context, userID string, n domain.Notice) error {
	text := c.texts.NoticeText(n)
	if text == "" {
		return nil
	}
	ch, err := c.dmChannel(ctx, userID)
	if err != nil {
		return &domain.PlatformError{Op: "notify", Err: err}
	}
	return c.SendMessage(ctx, ch, text)
}

func (c *Client) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	ch, ok := c.dmChannels[userID]
	c.mu.RUnlock()
	if ok {
		return ch, nil
	}

	var channel apiChannel
	err := c.do(ctx, c.limiter, http.MethodPost, c.base+"/users/@me/channels",
		map[string]string{"recipient_id": userID}, &channel)
	if err != nil {
		return "", fmt.Errorf("open dm %s: %w", userID, err)
	}

	c.mu.Lock()
	c.dmChannels[userID] = channel.ID
	c.mu.Unlock()
	return channel.ID, nil
}

// --- transporte ---

func (c *Client) channelURL(channelID, path string) string {
	return c.base + "/channels/" + channelID + path
}

// do ejecuta la request con rate limiting, retries y backoff exponencial.
// out puede ser nil (respuestas 204).
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, method, u string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("%s %s failed after %d retries: %w", method, u, maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by discord", "method", method, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(b))
		}

		defer resp.Body.Close()
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

var (
	_ ports.Platform = (*Client)(nil)
	_ ports.Notifier = (*Client)(nil)
)
