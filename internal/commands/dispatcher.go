package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/alejandrodnm/wagerbot/internal/wager"
)

// Engine son las operaciones del servicio que exponen los comandos.
type Engine interface {
	Create(ctx context.Context, req wager.CreateRequest) (domain.Wager, error)
	LockNow(ctx context.Context, id string) (domain.Wager, error)
	Settle(ctx context.Context, req wager.SettleRequest) (domain.SettlementResult, error)
	SuggestFor(ctx context.Context, id, winningOptionID string) (domain.Suggestion, error)
	DisplayOdds(ctx context.Context, id string) (domain.Wager, []float64, error)
	Balance(ctx context.Context, participantID string) (int, error)
	Leaderboard(ctx context.Context, n int) ([]domain.LedgerEntry, error)
}

// Texts formatea las respuestas que no son triviales.
type Texts interface {
	SettlementText(res domain.SettlementResult) string
	LeaderboardText(entries []domain.LedgerEntry) string
	OddsText(w domain.Wager, multipliers []float64) string
}

// Access autoriza a los operadores y habilita roles nuevos con !assign.
type Access interface {
	ports.Authorizer
	Grant(ctx context.Context, actor domain.Actor, roleID string) error
}

// Replier publica la respuesta en el canal del comando.
type Replier interface {
	SendMessage(ctx context.Context, venue, content string) error
}

// Config controla el comportamiento del dispatcher.
type Config struct {
	Location *time.Location // zona horaria de "HH:MM" en !bet
	TopN     int
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{Location: time.UTC, TopN: 10}
}

// Dispatcher ejecuta los comandos y responde en el canal.
type Dispatcher struct {
	cfg    Config
	engine Engine
	auth   Access
	reply  Replier
	texts  Texts
	now    func() time.Time
}

// New crea el dispatcher. now puede ser nil (time.Now).
func New(cfg Config, engine Engine, auth Access, reply Replier, texts Texts, now func() time.Time) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{cfg: cfg, engine: engine, auth: auth, reply: reply, texts: texts, now: now}
}

// Subscribe registra el dispatcher en la fuente de comandos.
func (d *Dispatcher) Subscribe(src ports.CommandSource) {
	src.OnCommand(d.Handle)
}

// Handle ejecuta el comando y publica la respuesta. Los errores se responden
// al usuario; solo los inesperados se loguean como warning.
func (d *Dispatcher) Handle(ctx context.Context, cmd ports.Command) {
	text, err := d.Execute(ctx, cmd)
	if err != nil {
		text = errorText(err)
		if !expected(err) {
			slog.Warn("command failed", "content", cmd.Content, "actor", cmd.Actor.ID, "err", err)
		}
	}
	if text == "" {
		return
	}
	if err := d.reply.SendMessage(ctx, cmd.Venue, text); err != nil {
		slog.Warn("reply failed", "venue", cmd.Venue, "err", err)
	}
}

// Execute ejecuta el comando y devuelve el texto de respuesta.
// Un texto vacío sin error significa "no es para nosotros".
func (d *Dispatcher) Execute(ctx context.Context, cmd ports.Command) (string, error) {
	req, ok := Parse(cmd.Content)
	if !ok {
		return "", nil
	}
	slog.Debug("command received", "name", req.Name, "actor", cmd.Actor.ID, "venue", cmd.Venue)

	switch req.Name {
	case CmdBet:
		return d.bet(ctx, cmd, req)
	case CmdWinner:
		return d.winner(ctx, cmd, req)
	case CmdLock:
		return d.lock(ctx, cmd, req)
	case CmdOdds:
		return d.odds(ctx, req)
	case CmdPoints, CmdBalance:
		return d.points(ctx, cmd, req)
	case CmdTop:
		return d.top(ctx)
	case CmdAssign:
		return d.assign(ctx, cmd, req)
	case CmdHelp:
		return helpText, nil
	}
	return "", nil
}

func (d *Dispatcher) bet(ctx context.Context, cmd ports.Command, req Request) (string, error) {
	if err := d.authorize(cmd.Actor); err != nil {
		return "", err
	}
	args, err := ParseBet(req.Rest, d.now(), d.cfg.Location)
	if err != nil {
		return "", err
	}
	w, err := d.engine.Create(ctx, wager.CreateRequest{
		Question: args.Question,
		Options:  args.Options,
		Deadline: args.Deadline,
		Venue:    cmd.Venue,
		Actor:    cmd.Actor,
	})
	if err != nil {
		return "", fmt.Errorf("commands.bet: %w", err)
	}
	return fmt.Sprintf("📌 Wager `%s` created. Settle with `!winner %s <option#>`.", w.ID, w.ID), nil
}

func (d *Dispatcher) winner(ctx context.Context, cmd ports.Command, req Request) (string, error) {
	if err := d.authorize(cmd.Actor); err != nil {
		return "", err
	}
	args, err := ParseWinner(req.Args)
	if err != nil {
		return "", err
	}

	var winnerPts, loserPts int
	if args.Points != nil {
		winnerPts, loserPts = args.Points[0], args.Points[1]
	} else {
		// sin apuesta activa no hay sugerencia; Settle responde con el archivo
		s, err := d.engine.SuggestFor(ctx, args.WagerID, args.OptionID)
		switch {
		case err == nil:
			winnerPts, loserPts = s.WinnerPoints, s.LoserPoints
		case !errors.Is(err, domain.ErrNotFound):
			return "", fmt.Errorf("commands.winner: suggest: %w", err)
		}
	}

	res, err := d.engine.Settle(ctx, wager.SettleRequest{
		WagerID:         args.WagerID,
		WinningOptionID: args.OptionID,
		WinnerDelta:     winnerPts,
		LoserDelta:      loserPts,
		Actor:           cmd.Actor,
	})
	if err != nil {
		return "", fmt.Errorf("commands.winner: %w", err)
	}
	text := d.texts.SettlementText(res)
	if !res.AlreadySettled {
		text += fmt.Sprintf(" (+%d / -%d)", winnerPts, loserPts)
	}
	return text, nil
}

func (d *Dispatcher) lock(ctx context.Context, cmd ports.Command, req Request) (string, error) {
	if err := d.authorize(cmd.Actor); err != nil {
		return "", err
	}
	if len(req.Args) != 1 {
		return "", domain.Invalid("command", "usage: !lock <wager>")
	}
	w, err := d.engine.LockNow(ctx, req.Args[0])
	if err != nil {
		return "", fmt.Errorf("commands.lock: %w", err)
	}
	return fmt.Sprintf("🔒 Voting for **%s** is locked (%d votes).", w.Question, w.TotalVotes()), nil
}

func (d *Dispatcher) odds(ctx context.Context, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", domain.Invalid("command", "usage: !odds <wager>")
	}
	w, mult, err := d.engine.DisplayOdds(ctx, req.Args[0])
	if err != nil {
		return "", fmt.Errorf("commands.odds: %w", err)
	}
	return d.texts.OddsText(w, mult), nil
}

func (d *Dispatcher) points(ctx context.Context, cmd ports.Command, req Request) (string, error) {
	pid := cmd.Actor.ID
	if len(req.Args) > 0 {
		pid = mentionID(req.Args[0])
	}
	bal, err := d.engine.Balance(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("commands.points: %w", err)
	}
	if pid == cmd.Actor.ID {
		return fmt.Sprintf("💰 You have **%d** points.", bal), nil
	}
	return fmt.Sprintf("💰 <@%s> has **%d** points.", pid, bal), nil
}

func (d *Dispatcher) top(ctx context.Context) (string, error) {
	entries, err := d.engine.Leaderboard(ctx, d.cfg.TopN)
	if err != nil {
		return "", fmt.Errorf("commands.top: %w", err)
	}
	return d.texts.LeaderboardText(entries), nil
}

func (d *Dispatcher) assign(ctx context.Context, cmd ports.Command, req Request) (string, error) {
	if d.auth == nil {
		return "", domain.ErrUnauthorized
	}
	if len(req.Args) != 1 {
		return "", domain.Invalid("command", "usage: !assign <@role>")
	}
	role := roleMentionID(req.Args[0])
	if err := d.auth.Grant(ctx, cmd.Actor, role); err != nil {
		return "", fmt.Errorf("commands.assign: %w", err)
	}
	return fmt.Sprintf("🔑 <@&%s> can now create, lock and settle wagers.", role), nil
}

func (d *Dispatcher) authorize(actor domain.Actor) error {
	if d.auth == nil || !d.auth.IsAuthorized(actor) {
		return domain.ErrUnauthorized
	}
	return nil
}

// expected devuelve true para errores que son culpa del usuario.
func expected(err error) bool {
	return domain.IsValidation(err) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotLocked)
}

func errorText(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "❗ " + capitalize(ve.Error()) + "."
	case errors.Is(err, domain.ErrUnauthorized):
		return "❗ You are not allowed to do that."
	case errors.Is(err, domain.ErrNotFound):
		return "❗ Unknown wager."
	case errors.Is(err, domain.ErrNotLocked):
		return "❗ Voting is still open. Lock the wager first with `!lock <wager>`."
	}
	return "⚠️ Something went wrong, try again in a moment."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const helpText = "**Commands**\n" +
	"`!bet question | HH:MM | Label 🔵 | Label 🔴` create a wager\n" +
	"`!bet A vs B | HH:MM` shorthand with 🔵/🔴\n" +
	"`!lock <wager>` lock voting now\n" +
	"`!winner <wager> <option#> [winnerPts loserPts]` settle\n" +
	"`!odds <wager>` current multipliers\n" +
	"`!points [@user]` balance\n" +
	"`!top` leaderboard\n" +
	"`!assign <@role>` let a role run betting commands (admins only)"
