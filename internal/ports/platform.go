package ports

import (
	"context"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// Announcement es el contenido del anuncio de una apuesta.
// Tokens son los marcadores que el bot siembra para facilitar el voto.
type Announcement struct {
	Content string
	Tokens  []string
}

// Platform es el adapter de la plataforma de mensajería.
// Todas las llamadas pueden fallar con *domain.PlatformError.
type Platform interface {
	// PostAnnouncement publica el anuncio en venue y devuelve su id.
	PostAnnouncement(ctx context.Context, venue string, a Announcement) (string, error)

	// EditAnnouncement reemplaza el contenido del anuncio.
	EditAnnouncement(ctx context.Context, venue, announcementID string, a Announcement) error

	// RemoveVoteMarker quita el marcador rawToken del participante.
	RemoveVoteMarker(ctx context.Context, venue, announcementID, participantID, rawToken string) error

	// FetchVoteMarkers devuelve raw token → participantes, excluyendo al bot.
	FetchVoteMarkers(ctx context.Context, venue, announcementID string) (map[string][]string, error)

	// SendMessage publica un mensaje de texto en venue (respuestas a comandos).
	SendMessage(ctx context.Context, venue, content string) error
}

// VoteHandler recibe eventos de voto de la plataforma.
type VoteHandler func(ctx context.Context, ev domain.VoteEvent)

// EventSource entrega los eventos de voto (at-least-once, sin orden).
type EventSource interface {
	OnVoteCast(h VoteHandler)
	OnVoteRetract(h VoteHandler)
}

// Presenter formatea el anuncio de una apuesta según su estado.
// multipliers son los multiplicadores informativos por opción.
type Presenter interface {
	WagerAnnouncement(w domain.Wager, multipliers []float64) Announcement
}

// Command es un mensaje de texto dirigido al bot ("!bet ...", "!winner ...").
type Command struct {
	Venue     string
	MessageID string
	Actor     domain.Actor
	Content   string
}

// CommandHandler recibe los comandos de la plataforma.
type CommandHandler func(ctx context.Context, cmd Command)

// CommandSource entrega los comandos escritos por los usuarios.
type CommandSource interface {
	OnCommand(h CommandHandler)
}
