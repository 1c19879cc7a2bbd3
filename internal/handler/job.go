package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
)

// JobHandler serves materialized jobs and the per-user dashboard.
type JobHandler struct {
	Jobs          *repository.JobRepo
	Negotiations  *repository.NegotiationRepo
	Notifications *repository.NotificationRepo
}

func NewJobHandler(j *repository.JobRepo, n *repository.NegotiationRepo, nt *repository.NotificationRepo) *JobHandler {
	if j == nil || n == nil || nt == nil {
		panic("nil repository passed to NewJobHandler")
	}
	return &JobHandler{Jobs: j, Negotiations: n, Notifications: nt}
}

// List returns the caller's jobs, newest first.
func (h *JobHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit, offset := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	out, err := h.Jobs.ListJobsByParty(ctx, uid, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limit, "offset": offset})
}

// Get returns a job the caller is a party to.
func (h *JobHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	job, err := h.Jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if job.RequesterID != uid && job.ProviderID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your job"})
	}
	return c.JSON(http.StatusOK, job)
}

type dashboardResp struct {
	Negotiations        map[model.NegotiationStatus]int `json:"negotiations"`
	ActiveNegotiations  int                             `json:"active_negotiations"`
	JobsInProgress      int                             `json:"jobs_in_progress"`
	UnreadNotifications int                             `json:"unread_notifications"`
}

// Dashboard summarises the caller's negotiations, jobs and unread
// notifications.
func (h *JobHandler) Dashboard(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	counts, err := h.Negotiations.CountNegotiationsByStatus(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	jobs, err := h.Jobs.CountJobs(ctx, uid, model.JobInProgress)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	unread, err := h.Notifications.CountUnread(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, dashboardResp{
		Negotiations:        counts,
		ActiveNegotiations:  counts[model.StatusPending] + counts[model.StatusBothAgreed],
		JobsInProgress:      jobs,
		UnreadNotifications: unread,
	})
}
