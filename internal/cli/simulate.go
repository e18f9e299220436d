package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ArowuTest/lottery-odds/internal/config"
	"github.com/ArowuTest/lottery-odds/internal/entrants"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/report"
	"github.com/ArowuTest/lottery-odds/internal/simulation"
)

type simulateOptions struct {
	file          string
	iterations    int
	mainSpots     int
	waitlistSpots int
	workers       int
	seed          string
	asJSON        bool
}

func newSimulateCmd() *cobra.Command {
	var opt simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the lottery many times and print each ticket count's odds.",
		Long: `
Loads a "name,tickets" CSV, runs the weighted draw the requested number of
times and prints, for each distinct ticket count, the chance of landing a main
spot, a waitlist spot or either. Flags left unset fall back to SIM_* and
ENTRANTS_FILE from the environment or .env.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opt)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opt.file, "file", "f", "entrants.csv", "Path to the entrants CSV")
	flags.IntVarP(&opt.iterations, "iterations", "i", simulation.DefaultIterations, "Number of simulated lotteries")
	flags.IntVarP(&opt.mainSpots, "main-spots", "m", simulation.DefaultMainSpots, "Number of main spots")
	flags.IntVarP(&opt.waitlistSpots, "waitlist-spots", "w", simulation.DefaultWaitlistSpots, "Number of waitlist spots")
	flags.IntVar(&opt.workers, "workers", 0, "Goroutines running trials (0 = number of CPUs)")
	flags.StringVarP(&opt.seed, "seed", "s", "", "Random seed for a reproducible run, any 64-bit integer (random when unset)")
	flags.BoolVar(&opt.asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runSimulate(cmd *cobra.Command, opt simulateOptions) error {
	cfg := config.Load()
	flags := cmd.Flags()

	file := opt.file
	if !flags.Changed("file") && cfg.EntrantsFile != "" {
		file = cfg.EntrantsFile
	}
	p := cfg.SimulationDefaults()
	if flags.Changed("iterations") {
		p.Iterations = opt.iterations
	}
	if flags.Changed("main-spots") {
		p.MainSpots = opt.mainSpots
	}
	if flags.Changed("waitlist-spots") {
		p.WaitlistSpots = opt.waitlistSpots
	}
	if flags.Changed("workers") {
		p.Workers = opt.workers
	}
	if flags.Changed("seed") {
		seed, err := parseSeed(opt.seed)
		if err != nil {
			return err
		}
		p.Seed = &seed
	}
	if err := p.Validate(); err != nil {
		return err
	}

	// With --json stdout carries only the report.
	out := cmd.OutOrStdout()
	status := out
	if opt.asJSON {
		status = cmd.ErrOrStderr()
	}

	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("entrants file not found: %s", file)
		}
		return err
	}
	fmt.Fprintf(status, "Loading entrants from: %s\n", file)
	pool, err := entrants.Load(file)
	if err != nil {
		return err
	}
	fmt.Fprintf(status, "Loaded %d entrants\n", len(pool))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(status, "\nRunning %s iterations...\n", humanize.Comma(int64(p.Iterations)))
	res, err := simulation.Simulate(ctx, pool, p, func(completed, total int) {
		fmt.Fprintf(status, "  Iteration %s/%s...\n", humanize.Comma(int64(completed)), humanize.Comma(int64(total)))
	})
	if res == nil {
		return err
	}
	if err != nil {
		// Interrupted: show what was gathered, then fail.
		fmt.Fprintf(status, "Interrupted: %v\n", err)
	}

	if rerr := write(out, report.Build(res), opt.asJSON); rerr != nil {
		return rerr
	}
	if err != nil && errors.Is(err, context.Canceled) {
		return errors.New("simulation interrupted")
	}
	return err
}

// parseSeed accepts unsigned seeds as printed in reports, and negative ones
// by their two's complement bit pattern.
func parseSeed(s string) (uint64, error) {
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(models.ErrInvalidParameter, "seed must be a 64-bit integer, got %q", s)
	}
	return uint64(n), nil
}

func write(w io.Writer, r *report.Report, asJSON bool) error {
	if !asJSON {
		return report.Render(w, r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
