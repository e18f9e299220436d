package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArowuTest/lottery-odds/internal/entrants"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/report"
	"github.com/ArowuTest/lottery-odds/internal/rng"
	"github.com/ArowuTest/lottery-odds/internal/simulation"
	"github.com/ArowuTest/lottery-odds/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const listLimit = 100

// simulationRequest is the JSON payload for starting a simulation. Omitted
// numbers fall back to the server's configured defaults.
type simulationRequest struct {
	Iterations    *int             `json:"iterations"`
	MainSpots     *int             `json:"main_spots"`
	WaitlistSpots *int             `json:"waitlist_spots"`
	Workers       *int             `json:"workers"`
	Seed          *uint64          `json:"seed"`
	Entrants      []models.Entrant `json:"entrants"`
}

type liveRun struct {
	cancel    context.CancelFunc
	completed atomic.Int64
}

// SimulationHandler runs simulations in the background and archives them.
type SimulationHandler struct {
	runs     store.RunStore
	hub      *ProgressHub
	defaults simulation.Params

	mu   sync.Mutex
	live map[uuid.UUID]*liveRun
	wg   sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc
}

func NewSimulationHandler(runs store.RunStore, hub *ProgressHub, defaults simulation.Params) *SimulationHandler {
	ctx, stop := context.WithCancel(context.Background())
	return &SimulationHandler{
		runs:     runs,
		hub:      hub,
		defaults: defaults,
		live:     make(map[uuid.UUID]*liveRun),
		baseCtx:  ctx,
		stop:     stop,
	}
}

// Create handles POST /api/v1/simulations
func (h *SimulationHandler) Create(c *gin.Context) {
	var req simulationRequest
	var err error
	if c.ContentType() == "multipart/form-data" {
		err = bindMultipart(c, &req)
	} else if err = c.ShouldBindJSON(&req); err != nil {
		err = errors.Wrap(models.ErrInvalidParameter, "invalid payload: "+err.Error())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	pool, err := entrants.Clean(req.Entrants)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(pool) == 0 {
		respondError(c, errors.Wrap(models.ErrInvalidEntrant, "no entrants supplied"))
		return
	}

	p := h.defaults
	if req.Iterations != nil {
		p.Iterations = *req.Iterations
	}
	if req.MainSpots != nil {
		p.MainSpots = *req.MainSpots
	}
	if req.WaitlistSpots != nil {
		p.WaitlistSpots = *req.WaitlistSpots
	}
	if req.Workers != nil {
		p.Workers = *req.Workers
	}
	p.Seed = req.Seed
	if err := p.Validate(); err != nil {
		respondError(c, err)
		return
	}
	// The seed is fixed before the run is archived so it can be replayed
	// even if the run fails.
	if p.Seed == nil {
		seed, err := rng.RandomSeed()
		if err != nil {
			respondError(c, err)
			return
		}
		p.Seed = &seed
	}

	run := &models.SimulationRun{
		ID:            uuid.New(),
		Status:        models.RunRunning,
		Iterations:    p.Iterations,
		MainSpots:     p.MainSpots,
		WaitlistSpots: p.WaitlistSpots,
		Workers:       p.Workers,
		Seed:          int64(*p.Seed),
		PoolHash:      entrants.Fingerprint(pool),
		EntrantCount:  len(pool),
		TotalTickets:  entrants.TotalTickets(pool),
		CreatedBy:     c.GetString("username"),
	}
	if err := h.runs.CreateRun(c.Request.Context(), run); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	lr := h.track(run.ID, cancel)

	if c.Query("wait") == "true" {
		// A client that hangs up cancels its synchronous run.
		unhook := context.AfterFunc(c.Request.Context(), cancel)
		defer unhook()
		h.execute(ctx, run, pool, p, lr)
		c.JSON(http.StatusOK, gin.H{"run": run, "report": report.FromRun(run)})
		return
	}

	accepted := gin.H{
		"id":           run.ID,
		"status":       run.Status,
		"seed":         strconv.FormatUint(*p.Seed, 10),
		"progress_url": "/api/v1/simulations/" + run.ID.String() + "/progress",
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.execute(ctx, run, pool, p, lr)
	}()
	c.JSON(http.StatusAccepted, accepted)
}

// execute runs the simulation, archives the outcome and closes the run's
// progress stream. The run is saved before subscribers are released.
func (h *SimulationHandler) execute(ctx context.Context, run *models.SimulationRun, pool []models.Entrant, p simulation.Params, lr *liveRun) {
	defer lr.cancel()
	started := time.Now()

	res, err := simulation.Simulate(ctx, pool, p, func(completed, total int) {
		lr.completed.Store(int64(completed))
		h.hub.Publish(ProgressEvent{RunID: run.ID, Completed: completed, Total: total, Status: models.RunRunning})
	})

	finished := time.Now()
	run.FinishedAt = &finished
	switch {
	case err == nil:
		run.Status = models.RunCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Status = models.RunCancelled
		run.Error = err.Error()
	default:
		run.Status = models.RunFailed
		run.Error = err.Error()
	}
	if res != nil {
		run.CompletedTrials = res.Trials
		run.Workers = res.Workers
		run.Classes = classRows(run.ID, res)
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.runs.SaveRun(saveCtx, run); err != nil {
		log.Printf("saving simulation %s failed: %v", run.ID, err)
	}
	h.untrack(run.ID)
	h.hub.Finish(ProgressEvent{RunID: run.ID, Completed: run.CompletedTrials, Total: run.Iterations, Status: run.Status})

	log.Printf("simulation %s %s: %d/%d trials over %d entrants in %s",
		run.ID, run.Status, run.CompletedTrials, run.Iterations, run.EntrantCount, finished.Sub(started).Round(time.Millisecond))
}

func classRows(runID uuid.UUID, res *simulation.Result) []models.WeightClassResult {
	sorted := res.Sorted()
	rows := make([]models.WeightClassResult, len(sorted))
	for i, cs := range sorted {
		rows[i] = models.WeightClassResult{
			RunID:              runID,
			Tickets:            cs.Tickets,
			Entrants:           cs.Entrants,
			MainSelections:     cs.MainSelections,
			WaitlistSelections: cs.WaitlistSelections,
		}
	}
	return rows
}

func (h *SimulationHandler) track(id uuid.UUID, cancel context.CancelFunc) *liveRun {
	lr := &liveRun{cancel: cancel}
	h.mu.Lock()
	h.live[id] = lr
	h.mu.Unlock()
	return lr
}

func (h *SimulationHandler) untrack(id uuid.UUID) {
	h.mu.Lock()
	delete(h.live, id)
	h.mu.Unlock()
}

func (h *SimulationHandler) lookup(id uuid.UUID) *liveRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live[id]
}

// Get handles GET /api/v1/simulations/:id
func (h *SimulationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid simulation ID"})
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if run.Status == models.RunRunning {
		if lr := h.lookup(id); lr != nil {
			run.CompletedTrials = int(lr.completed.Load())
		}
		c.JSON(http.StatusOK, gin.H{"run": run})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "report": report.FromRun(run)})
}

// List handles GET /api/v1/simulations
func (h *SimulationHandler) List(c *gin.Context) {
	runs, err := h.runs.ListRuns(c.Request.Context(), listLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// Cancel handles DELETE /api/v1/simulations/:id
func (h *SimulationHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid simulation ID"})
		return
	}
	if lr := h.lookup(id); lr != nil {
		lr.cancel()
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "Simulation is not running", "status": run.Status})
}

// Shutdown cancels every running simulation and waits until each has been
// archived.
func (h *SimulationHandler) Shutdown() {
	h.stop()
	h.wg.Wait()
}

// bindMultipart reads a CSV upload in the "file" field plus optional form
// values for the numeric parameters.
func bindMultipart(c *gin.Context, req *simulationRequest) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errors.Wrap(models.ErrInvalidParameter, "multipart request needs a CSV in the \"file\" field")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open upload")
	}
	defer f.Close()
	if req.Entrants, err = entrants.Parse(f); err != nil {
		return err
	}

	ints := []struct {
		field string
		dst   **int
	}{
		{"iterations", &req.Iterations},
		{"main_spots", &req.MainSpots},
		{"waitlist_spots", &req.WaitlistSpots},
		{"workers", &req.Workers},
	}
	for _, in := range ints {
		s := c.PostForm(in.field)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.Wrapf(models.ErrInvalidParameter, "%s must be an integer, got %q", in.field, s)
		}
		*in.dst = &n
	}
	if s := c.PostForm("seed"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return errors.Wrapf(models.ErrInvalidParameter, "seed must be an unsigned integer, got %q", s)
		}
		req.Seed = &seed
	}
	return nil
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEntrant), errors.Is(err, models.ErrInvalidParameter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Simulation not found"})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
