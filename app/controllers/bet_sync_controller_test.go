package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/app/repository"
	"github.com/ManuelReschke/BetSync/internal/pkg/betsync"
	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobstatus"
	"github.com/ManuelReschke/BetSync/internal/pkg/testutil"
)

var testDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

type nopDispatcher struct{ jobs []string }

func (d *nopDispatcher) Dispatch(_ context.Context, jobID string, _ jobqueue.SyncBetsJobPayload) error {
	d.jobs = append(d.jobs, jobID)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type controllerFixture struct {
	app        *fiber.App
	tracker    *jobstatus.Tracker
	dispatcher *nopDispatcher
	bets       repository.BetRepository
}

func newControllerFixture(t *testing.T, cfg *config.SyncConfig) *controllerFixture {
	t.Helper()

	sourceDB := testutil.NewSourceDB(t)
	testutil.NewSourceFixture(t, sourceDB).
		User(7, "ALICE2024").
		Channel(1, "VN").
		Channel(2, "TH").
		Bet(7, 1, "50", models.OutcomeHouseLoses, "1.5", testDay.Add(9*time.Hour)).
		Bet(7, 1, "30", models.OutcomeHouseWins, "0", testDay.Add(11*time.Hour))

	_, client := testutil.NewRedis(t)
	f := &controllerFixture{
		tracker:    jobstatus.NewTracker(client, time.Hour),
		dispatcher: &nopDispatcher{},
		bets:       repository.NewBetRepository(testutil.NewDestinationDB(t), 250),
	}
	o := betsync.NewOrchestrator(repository.NewSourceBetRepository(sourceDB), f.bets, f.tracker, f.dispatcher, cfg)
	bc := NewBetSyncController(o).WithClock(func() time.Time { return testDay.Add(12 * time.Hour) })

	f.app = fiber.New()
	f.app.Post("/api/v1/sync-bets", bc.HandleSyncToday)
	f.app.Post("/api/v1/sync-bets/date-range", bc.HandleSyncDateRange)
	f.app.Post("/api/v1/sync-bets/background", bc.HandleSyncBackground)
	f.app.Get("/api/v1/sync-bets/jobs/:jobId", bc.HandleGetJobStatus)
	return f
}

func (f *controllerFixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func TestHandleSyncToday(t *testing.T) {
	f := newControllerFixture(t, nil)

	status, body := f.do(t, http.MethodPost, "/api/v1/sync-bets", "")
	require.Equal(t, fiber.StatusOK, status, body.Error)
	assert.True(t, body.Success)

	var data struct {
		StartDate string              `json:"start_date"`
		Result    betsync.SyncResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, "2024-01-15", data.StartDate)
	assert.Equal(t, int64(1), data.Result.ProcessedRecords)
}

func TestHandleSyncDateRange(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"Valid range", `{"start_date":"2024-01-14","end_date":"2024-01-15","channel":"vn"}`, fiber.StatusOK},
		{"Missing end date", `{"start_date":"2024-01-14"}`, fiber.StatusBadRequest},
		{"Bad date format", `{"start_date":"14.01.2024","end_date":"2024-01-15"}`, fiber.StatusBadRequest},
		{"End before start", `{"start_date":"2024-01-15","end_date":"2024-01-14"}`, fiber.StatusUnprocessableEntity},
		{"Channel not allowed", `{"start_date":"2024-01-15","end_date":"2024-01-15","channel":"XX"}`, fiber.StatusUnprocessableEntity},
		{"Malformed JSON", `{"start_date":`, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t, nil)

			status, body := f.do(t, http.MethodPost, "/api/v1/sync-bets/date-range", tt.body)

			assert.Equal(t, tt.status, status, body.Error)
			assert.Equal(t, tt.status == fiber.StatusOK, body.Success)
			if !body.Success {
				assert.NotEmpty(t, body.Message)
			}
		})
	}
}

func TestHandleSyncDateRange_WritesRollup(t *testing.T) {
	f := newControllerFixture(t, nil)

	status, _ := f.do(t, http.MethodPost, "/api/v1/sync-bets/date-range", `{"start_date":"2024-01-15","end_date":"2024-01-15"}`)
	require.Equal(t, fiber.StatusOK, status)

	got, err := f.bets.GetByKey(context.Background(), models.BetKey{Account: "ALICE2024", Channel: "VN", Trandate: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, "ALIC", got.Master)
}

func TestHandleSyncBackground_Routing(t *testing.T) {
	t.Run("Small range runs inline", func(t *testing.T) {
		f := newControllerFixture(t, nil)

		status, body := f.do(t, http.MethodPost, "/api/v1/sync-bets/background", `{"start_date":"2024-01-15","end_date":"2024-01-15"}`)

		assert.Equal(t, fiber.StatusOK, status, body.Error)
		assert.Empty(t, f.dispatcher.jobs)
	})

	t.Run("Large range is queued", func(t *testing.T) {
		cfg := config.New()
		cfg.BackgroundThreshold = 0
		f := newControllerFixture(t, cfg)

		status, body := f.do(t, http.MethodPost, "/api/v1/sync-bets/background", `{"start_date":"2024-01-15","end_date":"2024-01-15"}`)
		require.Equal(t, fiber.StatusAccepted, status, body.Error)
		require.Len(t, f.dispatcher.jobs, 1)

		var data struct {
			JobID            string `json:"job_id"`
			EstimatedRecords int64  `json:"estimated_records"`
			StatusURL        string `json:"status_url"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &data))
		assert.Equal(t, f.dispatcher.jobs[0], data.JobID)
		assert.Equal(t, int64(1), data.EstimatedRecords)
		assert.Equal(t, "/api/v1/sync-bets/jobs/"+data.JobID, data.StatusURL)

		status, body = f.do(t, http.MethodGet, data.StatusURL, "")
		require.Equal(t, fiber.StatusOK, status)
		var job struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &job))
		assert.Equal(t, data.JobID, job.JobID)
		assert.Equal(t, string(jobstatus.StatusQueued), job.Status)
	})
}

func TestHandleGetJobStatus_NotFound(t *testing.T) {
	f := newControllerFixture(t, nil)

	status, body := f.do(t, http.MethodGet, "/api/v1/sync-bets/jobs/sync_bets_missing", "")

	assert.Equal(t, fiber.StatusNotFound, status)
	assert.False(t, body.Success)
}

func TestSyncRangeInput_Validate(t *testing.T) {
	assert.NoError(t, (&SyncRangeInput{}).Validate(false))
	assert.Error(t, (&SyncRangeInput{}).Validate(true))
	assert.Error(t, (&SyncRangeInput{StartDate: "2024-13-01", EndDate: "2024-01-01"}).Validate(true))
	assert.Error(t, (&SyncRangeInput{Channel: "V-N"}).Validate(false))
}
