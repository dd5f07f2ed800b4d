package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/betsync"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobstatus"
)

// JobStatusPath is the route template of the job status endpoint
const JobStatusPath = "/api/v1/sync-bets/jobs/%s"

// SyncRangeInput is the body of the date range and background endpoints
type SyncRangeInput struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Channel   string `json:"channel" validate:"omitempty,alpha,max=10"`
}

var validate = validator.New()

// Validate checks the field formats. requireDates rejects a missing start or end date.
func (in *SyncRangeInput) Validate(requireDates bool) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if requireDates && (in.StartDate == "" || in.EndDate == "") {
		return errors.New("start_date and end_date are required")
	}
	return nil
}

// BetSyncController serves the sync endpoints
type BetSyncController struct {
	o   *betsync.Orchestrator
	now func() time.Time
}

func NewBetSyncController(o *betsync.Orchestrator) *BetSyncController {
	return &BetSyncController{o: o, now: time.Now}
}

// WithClock replaces the clock that decides what "today" is
func (bc *BetSyncController) WithClock(now func() time.Time) *BetSyncController {
	bc.now = now
	return bc
}

// request turns the input into a sync request. Missing dates cover the default range ending today.
func (bc *BetSyncController) request(in SyncRangeInput) (models.SyncRequest, error) {
	today := models.NewBetDate(bc.now()).Time
	days := bc.o.Config().DefaultDateRangeDays
	if days < 1 {
		days = 1
	}
	start, end := today.AddDate(0, 0, 1-days), today

	var err error
	if in.StartDate != "" {
		if start, err = time.Parse(models.TrandateLayout, in.StartDate); err != nil {
			return models.SyncRequest{}, err
		}
	}
	if in.EndDate != "" {
		if end, err = time.Parse(models.TrandateLayout, in.EndDate); err != nil {
			return models.SyncRequest{}, err
		}
	}
	return models.NewSyncRequest(start, end, in.Channel), nil
}

func (bc *BetSyncController) parse(c *fiber.Ctx, requireDates bool) (models.SyncRequest, error) {
	var in SyncRangeInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return models.SyncRequest{}, err
		}
	}
	if in.Channel == "" {
		in.Channel = c.Query("channel")
	}
	if err := in.Validate(requireDates); err != nil {
		return models.SyncRequest{}, err
	}
	return bc.request(in)
}

// HandleSyncToday runs today's sync inline
func (bc *BetSyncController) HandleSyncToday(c *fiber.Ctx) error {
	req, err := bc.parse(c, false)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request", err)
	}
	today := models.NewBetDate(bc.now()).Time
	req = models.NewSyncRequest(today, today, req.Channel)

	return bc.runInline(c, req)
}

// HandleSyncDateRange runs the given range inline
func (bc *BetSyncController) HandleSyncDateRange(c *fiber.Ctx) error {
	req, err := bc.parse(c, true)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request", err)
	}
	return bc.runInline(c, req)
}

func (bc *BetSyncController) runInline(c *fiber.Ctx, req models.SyncRequest) error {
	result, err := bc.o.RunSync(c.UserContext(), req)
	if err != nil {
		log.Errorf("[BetSync] Inline sync %s failed: %v", req, err)
		return respondError(c, statusForError(err), "Bet sync failed", err)
	}
	return respondSuccess(c, fiber.StatusOK, "Bet sync completed", fiber.Map{
		"mode":       betsync.ModeInline,
		"start_date": req.StartDate.Format(models.TrandateLayout),
		"end_date":   req.EndDate.Format(models.TrandateLayout),
		"channel":    req.Channel,
		"result":     result,
	})
}

// HandleSyncBackground estimates the range and either runs it inline or queues it
func (bc *BetSyncController) HandleSyncBackground(c *fiber.Ctx) error {
	req, err := bc.parse(c, false)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request", err)
	}

	outcome, err := bc.o.Sync(c.UserContext(), req, jobqueue.TriggerAPI)
	if err != nil {
		log.Errorf("[BetSync] Sync %s failed: %v", req, err)
		return respondError(c, statusForError(err), "Bet sync failed", err)
	}

	if outcome.Mode == betsync.ModeInline {
		return respondSuccess(c, fiber.StatusOK, "Bet sync completed inline", outcome)
	}
	return respondSuccess(c, fiber.StatusAccepted, "Bet sync queued", fiber.Map{
		"mode":              outcome.Mode,
		"job_id":            outcome.Job.JobID,
		"estimated_records": outcome.Job.EstimatedRecords,
		"status_url":        fmt.Sprintf(JobStatusPath, outcome.Job.JobID),
	})
}

// HandleGetJobStatus returns the status of a background sync
func (bc *BetSyncController) HandleGetJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return respondError(c, fiber.StatusBadRequest, "Job id is required", nil)
	}

	status, err := bc.o.GetSyncStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, jobstatus.ErrNotFound) {
			return respondError(c, fiber.StatusNotFound, "Job not found or expired", err)
		}
		return respondError(c, fiber.StatusInternalServerError, "Failed to load job status", err)
	}
	return respondSuccess(c, fiber.StatusOK, "Job status", status)
}
