package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.ResultPublisher y ports.Notifier sobre stdout.
// En modo -dry-run reemplaza a los DMs y al webhook.
type Console struct {
	out io.Writer
	fmt *Formatter
	now func() time.Time
}

// NewConsole crea un publicador que escribe a stdout.
func NewConsole(f *Formatter) *Console {
	return &Console{out: os.Stdout, fmt: f, now: time.Now}
}

// NewConsoleWriter crea un publicador para tests.
func NewConsoleWriter(w io.Writer, f *Formatter) *Console {
	return &Console{out: w, fmt: f, now: time.Now}
}

// Notify imprime el aviso que recibiría el participante.
func (c *Console) Notify(_ context.Context, participantID string, n domain.Notice) error {
	text := c.fmt.NoticeText(n)
	if text == "" {
		return nil
	}
	fmt.Fprintf(c.out, "[%s] DM → %s (%s)\n%s\n", c.now().Format("15:04:05"), participantID, n.Kind, text)
	return nil
}

// PublishSettlement imprime el resumen y la tabla de outcomes.
func (c *Console) PublishSettlement(_ context.Context, res domain.SettlementResult) error {
	fmt.Fprintf(c.out, "\n[%s] %s\n", c.now().Format("15:04:05"), c.fmt.SettlementText(res))
	if res.AlreadySettled || len(res.Outcomes) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Participant", "Vote", "Result", "Delta", "Balance")
	for i, o := range res.Outcomes {
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.ParticipantID,
			truncate(o.VoteLabel, 24),
			string(o.Status),
			fmt.Sprintf("%+d", o.Delta),
			fmt.Sprintf("%d", o.Balance),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  source=%s winners=%d/%d\n\n", res.Source, res.Winners(), len(res.Outcomes))
	return nil
}

// PrintLeaderboard imprime el top del ledger.
func (c *Console) PrintLeaderboard(entries []domain.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "  No points yet.")
		return
	}

	fmt.Fprintf(c.out, "\n=== LEADERBOARD (top %d) ===\n", len(entries))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Participant", "Points")
	for i, e := range entries {
		table.Append(
			fmt.Sprintf("%d", i+1),
			e.ParticipantID,
			fmt.Sprintf("%d", e.Points),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// PrintWagers imprime las apuestas activas con sus votos y multiplicadores.
func (c *Console) PrintWagers(wagers []domain.Wager, odds domain.OddsCalculator) {
	if len(wagers) == 0 {
		fmt.Fprintf(c.out, "[%s] no active wagers\n", c.now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Question", "State", "Locks at", "Votes", "Odds")
	for _, w := range wagers {
		mult := odds.DisplayMultipliers(w.Counts())
		table.Append(
			truncate(w.ID, 20),
			truncate(w.Question, 38),
			string(w.State),
			w.Deadline.In(c.fmt.loc).Format("01-02 15:04"),
			votesLabel(w),
			oddsLabel(mult),
		)
	}
	table.Render()
}

// --- helpers ---

func votesLabel(w domain.Wager) string {
	s := ""
	for i, o := range w.Options {
		if i > 0 {
			s += " / "
		}
		s += fmt.Sprintf("%s %d", displayToken(o.Token), o.Votes)
	}
	return s
}

func oddsLabel(mult []float64) string {
	s := ""
	for i, m := range mult {
		if i > 0 {
			s += " / "
		}
		if m <= 0 {
			s += "-"
			continue
		}
		s += fmt.Sprintf("x%.2f", m)
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
