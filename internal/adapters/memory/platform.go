// Package memory implementa la plataforma de mensajería en memoria.
// Se usa en modo -dry-run y en los tests de orquestación.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/google/uuid"
)

var errNoAnnouncement = errors.New("unknown announcement")

// Announcement es el estado de un anuncio publicado.
type Announcement struct {
	ID      string
	Venue   string
	Content string
	Tokens  []string
	Edits   int
	markers map[string][]string // raw token → participantes
}

// Message es un mensaje de texto enviado a un venue.
type Message struct {
	Venue   string
	Content string
}

// Platform es una plataforma simulada. Los marcadores se agregan con
// React/Unreact, que además disparan los handlers registrados como lo haría
// el gateway real.
type Platform struct {
	mu            sync.Mutex
	announcements map[string]*Announcement
	messages      []Message
	notices       map[string][]domain.Notice
	published     []domain.SettlementResult
	removed       []domain.Marker

	castHandlers    []ports.VoteHandler
	retractHandlers []ports.VoteHandler
	commandHandlers []ports.CommandHandler

	// FailRemovals simula un bot sin permisos para quitar reacciones.
	FailRemovals bool
	// FailFetch simula una caída de la plataforma al leer marcadores.
	FailFetch bool
	// Now fija el instante de los eventos; time.Now si es nil.
	Now func() time.Time
}

// NewPlatform crea una plataforma vacía.
func NewPlatform() *Platform {
	return &Platform{
		announcements: make(map[string]*Announcement),
		notices:       make(map[string][]domain.Notice),
	}
}

// --- ports.Platform ---

func (p *Platform) PostAnnouncement(_ context.Context, venue string, a ports.Announcement) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.announcements[id] = &Announcement{
		ID:      id,
		Venue:   venue,
		Content: a.Content,
		Tokens:  append([]string(nil), a.Tokens...),
		markers: make(map[string][]string),
	}
	return id, nil
}

func (p *Platform) EditAnnouncement(_ context.Context, _, announcementID string, a ports.Announcement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ann, ok := p.announcements[announcementID]
	if !ok {
		return &domain.PlatformError{Op: "edit", Err: errNoAnnouncement}
	}
	ann.Content = a.Content
	ann.Edits++
	return nil
}

func (p *Platform) RemoveVoteMarker(_ context.Context, _, announcementID, participantID, rawToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailRemovals {
		return &domain.PlatformError{Op: "remove_marker", Err: errors.New("missing permissions")}
	}
	ann, ok := p.announcements[announcementID]
	if !ok {
		return &domain.PlatformError{Op: "remove_marker", Err: errNoAnnouncement}
	}
	ann.markers[rawToken] = without(ann.markers[rawToken], participantID)
	if len(ann.markers[rawToken]) == 0 {
		delete(ann.markers, rawToken)
	}
	p.removed = append(p.removed, domain.Marker{ParticipantID: participantID, Token: rawToken})
	return nil
}

func (p *Platform) FetchVoteMarkers(_ context.Context, _, announcementID string) (map[string][]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailFetch {
		return nil, &domain.PlatformError{Op: "fetch_markers", Err: errors.New("service unavailable")}
	}
	ann, ok := p.announcements[announcementID]
	if !ok {
		return nil, &domain.PlatformError{Op: "fetch_markers", Err: errNoAnnouncement}
	}
	out := make(map[string][]string, len(ann.markers))
	for tok, pids := range ann.markers {
		out[tok] = append([]string(nil), pids...)
	}
	return out, nil
}

func (p *Platform) SendMessage(_ context.Context, venue, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Venue: venue, Content: content})
	return nil
}

// --- ports.EventSource ---

func (p *Platform) OnVoteCast(h ports.VoteHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.castHandlers = append(p.castHandlers, h)
}

func (p *Platform) OnVoteRetract(h ports.VoteHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retractHandlers = append(p.retractHandlers, h)
}

// --- ports.CommandSource ---

func (p *Platform) OnCommand(h ports.CommandHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commandHandlers = append(p.commandHandlers, h)
}

// Say entrega un comando escrito por actor en venue.
func (p *Platform) Say(ctx context.Context, venue string, actor domain.Actor, content string) {
	p.mu.Lock()
	handlers := append([]ports.CommandHandler(nil), p.commandHandlers...)
	p.mu.Unlock()

	cmd := ports.Command{Venue: venue, MessageID: uuid.NewString(), Actor: actor, Content: content}
	for _, h := range handlers {
		h(ctx, cmd)
	}
}

// --- ports.Notifier / ports.ResultPublisher ---

func (p *Platform) Notify(_ context.Context, participantID string, n domain.Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices[participantID] = append(p.notices[participantID], n)
	return nil
}

func (p *Platform) PublishSettlement(_ context.Context, res domain.SettlementResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, res)
	return nil
}

// --- simulación de usuarios ---

// React agrega el marcador del participante y entrega el evento de cast.
func (p *Platform) React(ctx context.Context, announcementID, participantID, rawToken string) error {
	p.mu.Lock()
	ann, ok := p.announcements[announcementID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("memory.React: %s: %w", announcementID, errNoAnnouncement)
	}
	if !contains(ann.markers[rawToken], participantID) {
		ann.markers[rawToken] = append(ann.markers[rawToken], participantID)
	}
	handlers := append([]ports.VoteHandler(nil), p.castHandlers...)
	p.mu.Unlock()

	p.dispatch(ctx, handlers, announcementID, participantID, rawToken)
	return nil
}

// ReactSilently agrega un marcador sin entregar evento (p.ej. mientras el
// bot estaba caído).
func (p *Platform) ReactSilently(announcementID, participantID, rawToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ann, ok := p.announcements[announcementID]
	if !ok {
		return fmt.Errorf("memory.ReactSilently: %s: %w", announcementID, errNoAnnouncement)
	}
	if !contains(ann.markers[rawToken], participantID) {
		ann.markers[rawToken] = append(ann.markers[rawToken], participantID)
	}
	return nil
}

// Unreact quita el marcador del participante y entrega el evento de retract.
func (p *Platform) Unreact(ctx context.Context, announcementID, participantID, rawToken string) error {
	p.mu.Lock()
	ann, ok := p.announcements[announcementID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("memory.Unreact: %s: %w", announcementID, errNoAnnouncement)
	}
	ann.markers[rawToken] = without(ann.markers[rawToken], participantID)
	if len(ann.markers[rawToken]) == 0 {
		delete(ann.markers, rawToken)
	}
	handlers := append([]ports.VoteHandler(nil), p.retractHandlers...)
	p.mu.Unlock()

	p.dispatch(ctx, handlers, announcementID, participantID, rawToken)
	return nil
}

// --- inspección ---

// Announcement devuelve una copia del anuncio.
func (p *Platform) Announcement(id string) (Announcement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ann, ok := p.announcements[id]
	if !ok {
		return Announcement{}, false
	}
	c := *ann
	c.markers = nil
	return c, true
}

// Markers devuelve los participantes con el marcador rawToken, ordenados.
func (p *Platform) Markers(announcementID, rawToken string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ann, ok := p.announcements[announcementID]
	if !ok {
		return nil
	}
	out := append([]string(nil), ann.markers[rawToken]...)
	sort.Strings(out)
	return out
}

// Removed devuelve los marcadores que el bot retiró.
func (p *Platform) Removed() []domain.Marker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Marker(nil), p.removed...)
}

// Messages devuelve los mensajes enviados.
func (p *Platform) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Notices devuelve los avisos entregados a un participante.
func (p *Platform) Notices(participantID string) []domain.Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Notice(nil), p.notices[participantID]...)
}

// Published devuelve las liquidaciones publicadas.
func (p *Platform) Published() []domain.SettlementResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SettlementResult(nil), p.published...)
}

func (p *Platform) dispatch(ctx context.Context, handlers []ports.VoteHandler, announcementID, participantID, rawToken string) {
	at := time.Now()
	if p.Now != nil {
		at = p.Now()
	}
	ev := domain.VoteEvent{
		ParticipantID: participantID,
		RawToken:      rawToken,
		WagerID:       announcementID,
		At:            at,
	}
	for _, h := range handlers {
		h(ctx, ev)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
