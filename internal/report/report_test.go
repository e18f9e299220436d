package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/simulation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *simulation.Result {
	return simulation.NewResult(10000, 10000, 125, 125, 4, 99, []simulation.ClassStats{
		{Tickets: 4, Entrants: 10, MainSelections: 50000, WaitlistSelections: 30000},
		{Tickets: 1, Entrants: 200, MainSelections: 400000, WaitlistSelections: 500000},
		{Tickets: 2.5, Entrants: 40, MainSelections: 100000, WaitlistSelections: 100000},
	})
}

func TestBuild(t *testing.T) {
	r := Build(sampleResult())

	require.Len(t, r.Rows, 3)
	assert.Equal(t, []float64{1, 2.5, 4}, []float64{r.Rows[0].Tickets, r.Rows[1].Tickets, r.Rows[2].Tickets})
	assert.InDelta(t, 20.0, r.Rows[0].MainPct, 1e-9)
	assert.InDelta(t, 25.0, r.Rows[0].WaitlistPct, 1e-9)
	assert.InDelta(t, 45.0, r.Rows[0].EitherPct, 1e-9)
	assert.InDelta(t, 80.0, r.Rows[2].EitherPct, 1e-9)

	assert.Equal(t, 250, r.TotalEntrants)
	assert.Equal(t, 200.0+100.0+40.0, r.TotalTickets)
	assert.Equal(t, 250, r.TotalSpots)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(sampleResult())))
	out := buf.String()

	assert.Contains(t, out, "LOTTERY SIMULATION RESULTS")
	assert.Contains(t, out, "  Iterations:      10,000\n")
	assert.Contains(t, out, "  Total spots:     250\n")
	assert.Contains(t, out, "Tickets    Entrants   Main %       Waitlist %   Either %")
	assert.Contains(t, out, "2.5        40         25.00        25.00        50.00       \n")
	assert.Contains(t, out, "Total entrants: 250\n")
	assert.Contains(t, out, "Total tickets in pool: 340\n")
	assert.NotContains(t, out, "Completed:")
}

func TestRenderPartialRun(t *testing.T) {
	res := simulation.NewResult(5000, 1200, 1, 0, 1, 1, []simulation.ClassStats{{Tickets: 1, Entrants: 2, MainSelections: 1200}})
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(res)))
	assert.Contains(t, buf.String(), "  Completed:       1,200\n")
}

func TestFromRun(t *testing.T) {
	run := &models.SimulationRun{
		ID:              uuid.New(),
		Iterations:      100,
		CompletedTrials: 100,
		MainSpots:       1,
		WaitlistSpots:   1,
		Seed:            -1,
		Classes: []models.WeightClassResult{
			{Tickets: 1, Entrants: 2, MainSelections: 50, WaitlistSelections: 50},
			{Tickets: 3, Entrants: 1, MainSelections: 50, WaitlistSelections: 50},
		},
	}
	r := FromRun(run)
	require.Len(t, r.Rows, 2)
	assert.InDelta(t, 50.0, r.Rows[0].EitherPct, 1e-9)
	assert.InDelta(t, 100.0, r.Rows[1].EitherPct, 1e-9)
	assert.Equal(t, uint64(1<<64-1), r.Seed)
}

func TestReportJSONKeepsSeedExact(t *testing.T) {
	r := Build(simulation.NewResult(1, 1, 0, 0, 1, 1<<63+5, nil))
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"seed":"9223372036854775813"`)
}
