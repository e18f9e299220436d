// Package report turns simulation results into the odds table shown to users.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/simulation"
	"github.com/dustin/go-humanize"
)

// Row is one ticket count's line in the odds table. Percentages are 0-100.
type Row struct {
	Tickets     float64 `json:"tickets"`
	Entrants    int     `json:"entrants"`
	MainPct     float64 `json:"main_pct"`
	WaitlistPct float64 `json:"waitlist_pct"`
	EitherPct   float64 `json:"either_pct"`
}

// Report is the presentation form of a simulation result.
type Report struct {
	Iterations    int     `json:"iterations"`
	Trials        int     `json:"trials"`
	MainSpots     int     `json:"main_spots"`
	WaitlistSpots int     `json:"waitlist_spots"`
	TotalSpots    int     `json:"total_spots"`
	Seed          uint64  `json:"seed,string"`
	Rows          []Row   `json:"rows"`
	TotalEntrants int     `json:"total_entrants"`
	TotalTickets  float64 `json:"total_tickets"`
}

// Build sorts the result's classes by ticket count and computes the totals.
func Build(res *simulation.Result) *Report {
	r := &Report{
		Iterations:    res.Iterations,
		Trials:        res.Trials,
		MainSpots:     res.MainSpots,
		WaitlistSpots: res.WaitlistSpots,
		TotalSpots:    res.MainSpots + res.WaitlistSpots,
		Seed:          res.Seed,
	}
	for _, cs := range res.Sorted() {
		r.Rows = append(r.Rows, Row{
			Tickets:     cs.Tickets,
			Entrants:    cs.Entrants,
			MainPct:     cs.MainProbability() * 100,
			WaitlistPct: cs.WaitlistProbability() * 100,
			EitherPct:   cs.EitherProbability() * 100,
		})
		r.TotalEntrants += cs.Entrants
		r.TotalTickets += cs.Tickets * float64(cs.Entrants)
	}
	return r
}

// FromRun rebuilds the report of an archived run.
func FromRun(run *models.SimulationRun) *Report {
	classes := make([]simulation.ClassStats, len(run.Classes))
	for i, c := range run.Classes {
		classes[i] = simulation.ClassStats{
			Tickets:            c.Tickets,
			Entrants:           c.Entrants,
			MainSelections:     c.MainSelections,
			WaitlistSelections: c.WaitlistSelections,
		}
	}
	res := simulation.NewResult(run.Iterations, run.CompletedTrials, run.MainSpots, run.WaitlistSpots,
		run.Workers, uint64(run.Seed), classes)
	return Build(res)
}

const width = 80

// Render writes the report as a fixed-width console table.
func Render(w io.Writer, r *Report) error {
	var b strings.Builder
	rule := strings.Repeat("-", width)
	double := strings.Repeat("=", width)

	fmt.Fprintf(&b, "\n%s\nLOTTERY SIMULATION RESULTS\n%s\n", double, double)
	fmt.Fprintf(&b, "\nSimulation Parameters:\n")
	fmt.Fprintf(&b, "  Iterations:      %s\n", humanize.Comma(int64(r.Iterations)))
	if r.Trials != r.Iterations {
		fmt.Fprintf(&b, "  Completed:       %s\n", humanize.Comma(int64(r.Trials)))
	}
	fmt.Fprintf(&b, "  Main spots:      %d\n", r.MainSpots)
	fmt.Fprintf(&b, "  Waitlist spots:  %d\n", r.WaitlistSpots)
	fmt.Fprintf(&b, "  Total spots:     %d\n", r.TotalSpots)
	fmt.Fprintf(&b, "  Seed:            %d\n", r.Seed)

	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "%-10s %-10s %-12s %-12s %-12s\n", "Tickets", "Entrants", "Main %", "Waitlist %", "Either %")
	fmt.Fprintf(&b, "%s\n", rule)
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%-10s %-10d %-12.2f %-12.2f %-12.2f\n",
			formatTickets(row.Tickets), row.Entrants, row.MainPct, row.WaitlistPct, row.EitherPct)
	}
	fmt.Fprintf(&b, "%s\n", rule)

	fmt.Fprintf(&b, "\nTotal entrants: %s\n", humanize.Comma(int64(r.TotalEntrants)))
	fmt.Fprintf(&b, "Total tickets in pool: %s\n", humanize.Commaf(r.TotalTickets))

	_, err := io.WriteString(w, b.String())
	return err
}

func formatTickets(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
