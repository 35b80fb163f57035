package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// Formatter produce el texto (markdown de Discord) de anuncios, avisos y
// resúmenes. Implementa ports.Presenter.
type Formatter struct {
	loc *time.Location
}

// NewFormatter crea un formatter que muestra las horas en loc (UTC si es nil).
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

// WagerAnnouncement arma el anuncio según el estado de la apuesta.
func (f *Formatter) WagerAnnouncement(w domain.Wager, multipliers []float64) ports.Announcement {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**----------- %s -----------**\n\n", strings.ToUpper(w.Question))

	switch w.State {
	case domain.StateOpen, "":
		sb.WriteString("React to vote:\n")
		for i, o := range w.Options {
			fmt.Fprintf(&sb, "%s **%s**%s\n", displayToken(o.Token), o.Label, multLabel(multipliers, i))
		}
		fmt.Fprintf(&sb, "🔒 **Voting locks at %s**", w.Deadline.In(f.loc).Format("15:04"))

	case domain.StateLocked:
		for i, o := range w.Options {
			fmt.Fprintf(&sb, "%s **%s**: %d %s%s\n", displayToken(o.Token), o.Label, o.Votes, plural(o.Votes, "vote"), multLabel(multipliers, i))
		}
		sb.WriteString("🔒 **Voting is locked**, waiting for the result")

	case domain.StateSettled:
		for _, o := range w.Options {
			mark := ""
			if o.IsWinner {
				mark = " ✅"
			}
			fmt.Fprintf(&sb, "%s **%s**: %d %s%s\n", displayToken(o.Token), o.Label, o.Votes, plural(o.Votes, "vote"), mark)
		}
		for _, o := range w.Options {
			if o.IsWinner {
				fmt.Fprintf(&sb, "🏁 **Winner: %s**", o.Label)
			}
		}
	}

	tokens := make([]string, len(w.Options))
	for i, o := range w.Options {
		tokens[i] = o.Token
	}
	return ports.Announcement{Content: strings.TrimRight(sb.String(), "\n"), Tokens: tokens}
}

// NoticeText arma el mensaje directo para un participante.
func (f *Formatter) NoticeText(n domain.Notice) string {
	switch n.Kind {
	case domain.NoticeVoteFrozen:
		return fmt.Sprintf("🔒 Voting for **%s** is locked. You cannot change your vote.", n.Question)

	case domain.NoticeSettled:
		if n.Outcome == nil {
			return ""
		}
		o := n.Outcome
		var sb strings.Builder
		fmt.Fprintf(&sb, "**----------- %s RESULT -----------**\n\n", strings.ToUpper(n.Question))
		if o.Status == domain.OutcomeWon {
			fmt.Fprintf(&sb, "✅ **You Won**: **+%d** %s\n", o.Delta, plural(o.Delta, "point"))
		} else {
			fmt.Fprintf(&sb, "❌ **You Lost**: **%d** %s\n", o.Delta, plural(-o.Delta, "point"))
		}
		fmt.Fprintf(&sb, "\n**Your Vote**: %s", o.VoteLabel)
		fmt.Fprintf(&sb, "\n**Winner**: %s", o.WinnerLabel)
		fmt.Fprintf(&sb, "\n\n**Your Current Points**: %d", o.Balance)
		return sb.String()
	}
	return ""
}

// SettlementText resume una liquidación para el canal.
func (f *Formatter) SettlementText(res domain.SettlementResult) string {
	if res.AlreadySettled {
		return fmt.Sprintf("ℹ️ Wager `%s` was already settled (winner: **%s**).", res.WagerID, res.WinnerLabel)
	}
	won, lost := 0, 0
	for _, o := range res.Outcomes {
		if o.Status == domain.OutcomeWon {
			won++
		} else {
			lost++
		}
	}
	return fmt.Sprintf("✅ Winner set to **%s** for **%s**: %d won, %d lost.",
		res.WinnerLabel, res.Question, won, lost)
}

// LeaderboardText arma el top para el canal.
func (f *Formatter) LeaderboardText(entries []domain.LedgerEntry) string {
	if len(entries) == 0 {
		return "🏆 No points yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 **Top %d Players**:\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. <@%s> - %d %s\n", i+1, e.ParticipantID, e.Points, plural(e.Points, "point"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// OddsText muestra los multiplicadores informativos de una apuesta.
func (f *Formatter) OddsText(w domain.Wager, multipliers []float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **%s** (%s)\n", w.Question, w.State)
	for i, o := range w.Options {
		fmt.Fprintf(&sb, "%s **%s**: %d %s%s\n", displayToken(o.Token), o.Label, o.Votes, plural(o.Votes, "vote"), multLabel(multipliers, i))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// --- helpers ---

// displayToken devuelve el token en la forma que Discord renderiza.
// Los emojis custom se guardan como "name:id".
func displayToken(tok string) string {
	if i := strings.IndexByte(tok, ':'); i > 0 {
		return "<:" + tok + ">"
	}
	return tok
}

func multLabel(multipliers []float64, i int) string {
	if i >= len(multipliers) || multipliers[i] <= 0 {
		return ""
	}
	return fmt.Sprintf(" (x%.2f)", multipliers[i])
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
