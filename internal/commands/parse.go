// Package commands interpreta los comandos de texto del canal ("!bet",
// "!winner", ...) y los traduce a operaciones del servicio de apuestas.
package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

const prefix = "!"

// Nombres de comando reconocidos.
const (
	CmdBet     = "bet"
	CmdWinner  = "winner"
	CmdLock    = "lock"
	CmdOdds    = "odds"
	CmdPoints  = "points"
	CmdBalance = "balance"
	CmdTop     = "top"
	CmdHelp    = "help"
	CmdAssign  = "assign"
)

// Tokens por defecto del formato corto "A vs B | HH:MM".
const (
	firstTeamToken  = "🔵"
	secondTeamToken = "🔴"
)

// Request es un comando ya separado en nombre y argumentos.
// Rest es el texto tras el nombre, sin recortar por campos.
type Request struct {
	Name string
	Args []string
	Rest string
}

// Parse separa "!name arg1 arg2". Devuelve ok=false si el texto no es un comando.
func Parse(content string) (Request, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return Request{}, false
	}
	body := strings.TrimPrefix(content, prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Request{}, false
	}
	name := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0]))
	return Request{Name: name, Args: fields[1:], Rest: rest}, true
}

// BetArgs es el resultado de interpretar "!bet".
type BetArgs struct {
	Question string
	Options  []domain.OptionSpec
	Deadline time.Time
}

// ParseBet interpreta "question | HH:MM | Label tok | Label tok ...".
//
// Si solo vienen pregunta y hora y la pregunta tiene la forma "A vs B",
// se crean las opciones A 🔵 y B 🔴.
//
// La hora se interpreta en loc para el día de now. Una hora ya pasada es un
// error de validación: no se asume el día siguiente.
func ParseBet(rest string, now time.Time, loc *time.Location) (BetArgs, error) {
	parts := strings.Split(rest, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" {
		return BetArgs{}, domain.Invalid("command", "usage: !bet question | HH:MM | Label 🔵 | Label 🔴")
	}

	deadline, err := ParseClock(parts[1], now, loc)
	if err != nil {
		return BetArgs{}, err
	}

	args := BetArgs{Question: parts[0], Deadline: deadline}
	if len(parts) == 2 {
		opts, ok := versusOptions(parts[0])
		if !ok {
			return BetArgs{}, domain.Invalid("options", "list options as \"| Label token\" or ask \"A vs B\"")
		}
		args.Options = opts
		return args, nil
	}

	for _, p := range parts[2:] {
		if p == "" {
			continue
		}
		spec, err := domain.ParseOptionSpec(p)
		if err != nil {
			return BetArgs{}, err
		}
		args.Options = append(args.Options, spec)
	}
	return args, nil
}

// ParseClock interpreta "HH:MM" (24h) como un instante del día de now en loc.
func ParseClock(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("15:04", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, domain.Invalid("deadline", "expected HH:MM (24h), got "+strconv.Quote(s))
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func versusOptions(question string) ([]domain.OptionSpec, bool) {
	idx := strings.Index(strings.ToLower(question), " vs ")
	if idx < 0 {
		return nil, false
	}
	a := strings.TrimSpace(question[:idx])
	b := strings.TrimSpace(question[idx+len(" vs "):])
	if a == "" || b == "" {
		return nil, false
	}
	return []domain.OptionSpec{
		{Label: a, Token: firstTeamToken},
		{Label: b, Token: secondTeamToken},
	}, true
}

// WinnerArgs es el resultado de interpretar "!winner".
type WinnerArgs struct {
	WagerID  string
	OptionID string
	// Points es nil si el operador no fijó puntos: se usa la sugerencia.
	Points *[2]int
}

// ParseWinner interpreta "<wagerID> <option#> [winnerPts loserPts]".
func ParseWinner(args []string) (WinnerArgs, error) {
	if len(args) != 2 && len(args) != 4 {
		return WinnerArgs{}, domain.Invalid("command", "usage: !winner <wager> <option#> [winnerPts loserPts]")
	}
	opt, err := strconv.Atoi(args[1])
	if err != nil || opt < 1 {
		return WinnerArgs{}, domain.Invalid("option", "option must be a positive number, got "+strconv.Quote(args[1]))
	}
	// los ids de opción son "1", "2", ...: "02" o "+2" se normalizan
	out := WinnerArgs{WagerID: args[0], OptionID: strconv.Itoa(opt)}
	if len(args) == 4 {
		w, err := strconv.Atoi(args[2])
		if err != nil {
			return WinnerArgs{}, domain.Invalid("points", "winner points must be a number")
		}
		l, err := strconv.Atoi(args[3])
		if err != nil {
			return WinnerArgs{}, domain.Invalid("points", "loser points must be a number")
		}
		out.Points = &[2]int{w, l}
	}
	return out, nil
}

// roleMentionID acepta "123" y "<@&123>".
func roleMentionID(s string) string {
	s = strings.TrimPrefix(s, "<@&")
	return strings.TrimSuffix(s, ">")
}

// mentionID acepta "123", "<@123>" y "<@!123>".
func mentionID(s string) string {
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}
