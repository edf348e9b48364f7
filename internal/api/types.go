package api

import (
	"time"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

type RunResponse struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
	Status      string `json:"status"`
	Failure     string `json:"failure,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func runResponse(run domain.Run) RunResponse {
	resp := RunResponse{
		ID:          run.ID.String(),
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		Failure:     string(run.Failure),
		Error:       run.Error,
		ScheduledAt: formatTime(run.ScheduledAt),
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		CreatedAt:   formatTime(run.CreatedAt),
	}
	// The exit code only means something once the script actually ran.
	if run.Status.Terminal() && run.ExitCode >= 0 {
		code := run.ExitCode
		resp.ExitCode = &code
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
