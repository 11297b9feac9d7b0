package marketplace

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/apperr"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

// Handler exposes the job and applicant lifecycle over HTTP.
type Handler struct {
	Jobs     *JobStore
	Pipeline *Pipeline
}

func NewHandler(jobs *JobStore, pipeline *Pipeline) *Handler {
	return &Handler{Jobs: jobs, Pipeline: pipeline}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// =========================
// Jobs
// =========================

// CreateJob - poster drafts or publishes a job
func (h *Handler) CreateJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		ExpiredAt   time.Time `json:"expired_at"`
		Location    string    `json:"location"`
		Pay         *Pay      `json:"pay"`
		Tags        []string  `json:"tags"`
		Publish     bool      `json:"publish"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	job, err := h.Jobs.Create(c.Request().Context(), CreateJobInput{
		OwnerID:     userID,
		Title:       req.Title,
		Description: req.Description,
		ExpiredAt:   req.ExpiredAt,
		Location:    req.Location,
		Pay:         req.Pay,
		Tags:        req.Tags,
		Publish:     req.Publish,
	})
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, job)
}

// ListJobs - browse listed jobs, or the caller's drafts with ?drafts=true
func (h *Handler) ListJobs(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	f := JobFilter{
		OwnerID:  c.QueryParam("owner"),
		Status:   JobStatus(c.QueryParam("status")),
		Query:    c.QueryParam("q"),
		Location: c.QueryParam("location"),
		PayUnit:  PayUnit(c.QueryParam("pay_unit")),
		Sort:     JobSort(c.QueryParam("sort")),
	}
	if f.PayUnit != "" && !f.PayUnit.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pay_unit must be hour or project"})
	}
	if !f.Sort.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sort must be newest or highest_pay"})
	}
	if v := c.QueryParam("drafts"); v != "" {
		drafts, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid drafts flag"})
		}
		f.Drafts = drafts
	}
	if f.Drafts {
		f.OwnerID = userID
	}

	return c.JSON(http.StatusOK, echo.Map{"jobs": h.Jobs.List(c.Request().Context(), f)})
}

// GetJob - single job with its current status
func (h *Handler) GetJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	job, err := h.Jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.Respond(c, err)
	}
	if job.Status == JobDraft && job.OwnerID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	return c.JSON(http.StatusOK, job)
}

// UpdateJob - poster edits a job that is not closed yet
func (h *Handler) UpdateJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	var in UpdateJobInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	in.JobID = c.Param("id")
	in.Actor = userID

	job, err := h.Jobs.Update(c.Request().Context(), in)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// PublishJob - draft -> open
func (h *Handler) PublishJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	job, err := h.Jobs.Publish(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// CloseJob - stop accepting applications
func (h *Handler) CloseJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	job, err := h.Jobs.Close(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// DeleteJob - remove a job without pending applicants
func (h *Handler) DeleteJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Jobs.Delete(c.Request().Context(), c.Param("id"), userID); err != nil {
		return apperr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleSavedJob - seeker bookmarks a job, or drops the bookmark
func (h *Handler) ToggleSavedJob(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	saved, err := h.Jobs.ToggleSaved(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"job_id": c.Param("id"), "saved": saved})
}

// SavedJobs - seeker's bookmarked jobs
func (h *Handler) SavedJobs(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"jobs": h.Jobs.SavedJobs(c.Request().Context(), userID)})
}

// =========================
// Applications
// =========================

// Apply - seeker applies to a job
func (h *Handler) Apply(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	a, err := h.Pipeline.Apply(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// ListApplicants - poster reviews applicants of one job
func (h *Handler) ListApplicants(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Pipeline.ListByJob(c.Request().Context(), c.Param("id"), userID, ApplicantFilter{
		Status: ApplicantStatus(c.QueryParam("status")),
		Query:  c.QueryParam("q"),
	})
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// MyApplications - seeker's own applications
func (h *Handler) MyApplications(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"applications": h.Pipeline.ListByCandidate(c.Request().Context(), userID),
	})
}

// GetApplication - visible to its candidate and the job poster
func (h *Handler) GetApplication(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	a, err := h.Pipeline.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// DecideApplication - poster approves or rejects
func (h *Handler) DecideApplication(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Decision Decision `json:"decision"`
	}
	if err := c.Bind(&req); err != nil || req.Decision == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid decision"})
	}
	a, err := h.Pipeline.Decide(c.Request().Context(), c.Param("id"), userID, req.Decision)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// WithdrawApplication - candidate pulls a pending application
func (h *Handler) WithdrawApplication(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	a, err := h.Pipeline.Withdraw(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
