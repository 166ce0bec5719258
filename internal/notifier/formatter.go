package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"RiskArena/internal/leaderboard"
	"RiskArena/internal/model"
)

// Money renders an amount with thousands separators and no cents.
func Money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func signedMoney(v float64) string {
	if v < 0 {
		return "-" + Money(-v)
	}
	return "+" + Money(v)
}

var outcomeIcon = map[model.OutcomeKind]string{
	model.OutcomeSuccess:       "✅",
	model.OutcomeFailure:       "📉",
	model.OutcomeExpropriation: "🏛",
}

// FormatRoundSummary lists what every player got in round.
func FormatRoundSummary(g *model.Game, round int) string {
	var b strings.Builder
	r, ok := g.Rounds[round]
	if !ok {
		return fmt.Sprintf("Round %d not found in game %s", round, g.Code)
	}

	b.WriteString(fmt.Sprintf("📊 <b>Game %s</b> | round %d/%d closed\n", g.Code, round, g.TotalRounds))
	b.WriteString(fmt.Sprintf("A: %s (risk %.1f) | B: %s (risk %.1f)\n\n",
		html.EscapeString(r.Countries.A.DisplayName), r.Countries.A.RiskScore,
		html.EscapeString(r.Countries.B.DisplayName), r.Countries.B.RiskScore))

	settled := 0
	for _, p := range g.SortedPlayers() {
		sub, ok := p.SubmissionFor(round)
		if !ok || sub.Result == nil {
			continue
		}
		settled++
		b.WriteString(fmt.Sprintf("%s %s%s: %s → %s\n",
			icons(sub.Result), html.EscapeString(p.Name), adminTag(p),
			signedMoney(sub.Result.NetGain), Money(sub.Result.NewCapital)))
	}
	if settled == 0 {
		b.WriteString("No investments this round.\n")
	}
	return b.String()
}

// FormatLeaderboard renders the ranked table.
func FormatLeaderboard(board leaderboard.Board) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏆 <b>Standings %s</b> (round %d/%d)\n", board.Code, board.Round, board.TotalRounds))
	for _, e := range board.Entries {
		b.WriteString(fmt.Sprintf("%s %s: %s (%+.1f%%)\n",
			humanize.Ordinal(e.Rank), html.EscapeString(e.Name), Money(e.Capital), e.ReturnPct))
	}
	if board.Summary.Players > 1 {
		b.WriteString(fmt.Sprintf("\nAverage capital %s, spread %s\n",
			Money(board.Summary.MeanCapital), Money(board.Summary.StdDevCapital)))
	}
	return b.String()
}

// FormatGameFinished announces the winner.
func FormatGameFinished(board leaderboard.Board) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏁 <b>Game %s finished</b>\n", board.Code))
	if len(board.Entries) > 0 {
		w := board.Entries[0]
		b.WriteString(fmt.Sprintf("Winner: %s with %s\n", html.EscapeString(w.Name), Money(w.Capital)))
	}
	o := board.Summary.Outcomes
	b.WriteString(fmt.Sprintf("Outcomes: %d success, %d failure, %d expropriation\n\n", o.Success, o.Failure, o.Expropriation))
	b.WriteString(FormatLeaderboard(board))
	return b.String()
}

// FormatStatus describes where a game stands at now.
func FormatStatus(g *model.Game, remaining time.Duration) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🎮 <b>Game %s</b>\n", g.Code))
	b.WriteString(fmt.Sprintf("Status: %s\n", g.Status))
	b.WriteString(fmt.Sprintf("Players: %d\n", len(g.Players)))
	if g.Status == model.StatusActive {
		b.WriteString(fmt.Sprintf("Round: %d/%d\n", g.CurrentRound, g.TotalRounds))
		if r, ok := g.Current(); ok && r.IsActive {
			submitted := 0
			for _, p := range g.Players {
				if _, ok := p.SubmissionFor(r.Number); ok {
					submitted++
				}
			}
			b.WriteString(fmt.Sprintf("Submitted: %d/%d\n", submitted, len(g.Players)))
			b.WriteString(fmt.Sprintf("Time left: %ds\n", int(remaining.Round(time.Second).Seconds())))
		} else {
			b.WriteString("Waiting for the next round\n")
		}
	}
	b.WriteString(fmt.Sprintf("Created %s\n", humanize.Time(g.CreatedAt)))
	return b.String()
}

func icons(res *model.SubmissionResult) string {
	var parts []string
	for _, o := range []*model.OutcomeResult{res.OutcomeA, res.OutcomeB} {
		if o != nil {
			parts = append(parts, outcomeIcon[o.Kind])
		}
	}
	if len(parts) == 0 {
		return "💤"
	}
	return strings.Join(parts, "")
}

func adminTag(p *model.Player) string {
	if p.IsAdmin {
		return " (admin)"
	}
	return ""
}
