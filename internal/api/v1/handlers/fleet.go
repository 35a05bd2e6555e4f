package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/conflux-chain/cloud-provisioner/internal/fleet"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// FleetFunc runs one fleet acquisition. The handler never touches providers
// directly; the server wires a configured provisioner in here.
type FleetFunc func(ctx context.Context, requests []types.RegionRequest) ([]types.HostSpec, *fleet.ShortfallReport, error)

// JobStatus is the lifecycle state of an async fleet job
type JobStatus string

// Job lifecycle states
const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// FleetJob is one asynchronous fleet acquisition. Hosts and Report are set
// once the job leaves the running state.
type FleetJob struct {
	ID         string                 `json:"id"`
	Status     JobStatus              `json:"status"`
	Regions    []types.RegionRequest  `json:"regions"`
	Hosts      []types.HostSpec       `json:"hosts,omitempty"`
	Report     *fleet.ShortfallReport `json:"report,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// CreateFleetRequest is the body of POST /api/v1/fleets
type CreateFleetRequest struct {
	Regions []types.RegionRequest `json:"regions"`
}

// FleetHandler serves fleet acquisition as async jobs backed by an in-memory
// registry. Jobs do not survive a restart; callers persist the returned host
// inventory themselves.
type FleetHandler struct {
	provision FleetFunc

	mu     sync.Mutex
	jobs   map[string]*FleetJob
	nextID int
}

// NewFleetHandler creates a fleet handler around the given provision function
func NewFleetHandler(provision FleetFunc) *FleetHandler {
	return &FleetHandler{
		provision: provision,
		jobs:      make(map[string]*FleetJob),
	}
}

// CreateFleet handles the request to start a fleet acquisition job
func (h *FleetHandler) CreateFleet(c *fiber.Ctx) error {
	var req CreateFleetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid request body"))
	}
	if len(req.Regions) == 0 {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("no regions specified"))
	}
	for _, region := range req.Regions {
		if region.Name == "" || region.Count <= 0 {
			return c.Status(fiber.StatusBadRequest).
				JSON(errInvalidInput(fmt.Sprintf("invalid region request %+v", region)))
		}
	}

	job := h.newJob(req.Regions)

	// the HTTP request context dies with the response; the job keeps going
	go h.run(context.Background(), job.ID, req.Regions)

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Slug: SuccessSlug,
		Data: job,
	})
}

// GetFleet handles the request to fetch one job by id
func (h *FleetHandler) GetFleet(c *fiber.Ctx) error {
	id := c.Params("id")

	job, ok := h.snapshot(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).
			JSON(errNotFound(fmt.Sprintf("fleet job %s not found", id)))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: job,
	})
}

// ListFleets handles the request to list all known jobs
func (h *FleetHandler) ListFleets(c *fiber.Ctx) error {
	h.mu.Lock()
	jobs := make([]FleetJob, 0, len(h.jobs))
	for _, job := range h.jobs {
		jobs = append(jobs, *job)
	}
	h.mu.Unlock()

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: jobs,
	})
}

func (h *FleetHandler) newJob(regions []types.RegionRequest) FleetJob {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	job := &FleetJob{
		ID:        fmt.Sprintf("fleet-%d", h.nextID),
		Status:    JobRunning,
		Regions:   regions,
		CreatedAt: time.Now().UTC(),
	}
	h.jobs[job.ID] = job
	return *job
}

func (h *FleetHandler) snapshot(id string) (FleetJob, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	job, ok := h.jobs[id]
	if !ok {
		return FleetJob{}, false
	}
	return *job, true
}

func (h *FleetHandler) run(ctx context.Context, jobID string, regions []types.RegionRequest) {
	hosts, report, err := h.provision(ctx, regions)

	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	job := h.jobs[jobID]
	job.FinishedAt = &now
	if err != nil {
		logger.Errorf("Fleet job %s failed: %v", jobID, err)
		job.Status = JobFailed
		job.Error = err.Error()
		return
	}
	job.Status = JobCompleted
	job.Hosts = hosts
	job.Report = report
}
