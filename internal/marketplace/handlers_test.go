package marketplace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func (f *fixture) call(t *testing.T, h echo.HandlerFunc, method, target, body, userID string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	if len(params) > 0 {
		c.SetParamNames("id")
		c.SetParamValues(params...)
	}
	require.NoError(t, h(c))
	return rec
}

func TestHandlerJobAndApplicationFlow(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.jobs, f.pipeline)

	body, err := json.Marshal(map[string]any{
		"title":       "Solar farm panel inspection",
		"description": description(),
		"expired_at":  f.clk.Now().Add(7 * 24 * time.Hour),
		"publish":     true,
	})
	require.NoError(t, err)

	rec := f.call(t, h.CreateJob, http.MethodPost, "/jobs", string(body), "poster-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var job JobPosting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, JobOpen, job.Status)

	rec = f.call(t, h.Apply, http.MethodPost, "/jobs/"+job.ID+"/applications", "", "seeker-1", job.ID)
	require.Equal(t, http.StatusCreated, rec.Code)
	var a Applicant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))

	rec = f.call(t, h.Apply, http.MethodPost, "/jobs/"+job.ID+"/applications", "", "seeker-1", job.ID)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.call(t, h.DeleteJob, http.MethodDelete, "/jobs/"+job.ID, "", "poster-1", job.ID)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.call(t, h.DecideApplication, http.MethodPost, "/applications/"+a.ID+"/decision", `{"decision":"approve"}`, "seeker-1", a.ID)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.call(t, h.DecideApplication, http.MethodPost, "/applications/"+a.ID+"/decision", `{"decision":"approve"}`, "poster-1", a.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"approved"`)

	rec = f.call(t, h.ListApplicants, http.MethodGet, "/jobs/"+job.ID+"/applications", "", "poster-1", job.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ApplicantList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Counts[ApplicantApproved])

	rec = f.call(t, h.DeleteJob, http.MethodDelete, "/jobs/"+job.ID, "", "poster-1", job.ID)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerValidationAndAuth(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.jobs, f.pipeline)

	rec := f.call(t, h.CreateJob, http.MethodPost, "/jobs", `{"title":"x"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.call(t, h.CreateJob, http.MethodPost, "/jobs", `{"title":"x","description":"short"}`, "poster-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(t, h.ListJobs, http.MethodGet, "/jobs?drafts=maybe", "", "poster-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	draft := f.createJob(t, "poster-1", false)
	rec = f.call(t, h.GetJob, http.MethodGet, "/jobs/"+draft.ID, "", "seeker-1", draft.ID)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.call(t, h.GetJob, http.MethodGet, "/jobs/"+draft.ID, "", "poster-1", draft.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.call(t, h.ListJobs, http.MethodGet, "/jobs?drafts=true", "", "poster-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), draft.ID)
}

func TestHandlerJobDetailsAndSaved(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.jobs, f.pipeline)

	body, err := json.Marshal(map[string]any{
		"title":       "Resort promo flyover",
		"description": description(),
		"expired_at":  f.clk.Now().Add(7 * 24 * time.Hour),
		"location":    "Nha Trang",
		"pay":         map[string]any{"amount": 300, "unit": "project", "currency": "USD"},
		"tags":        []string{"Promo", "FPV"},
		"publish":     true,
	})
	require.NoError(t, err)
	rec := f.call(t, h.CreateJob, http.MethodPost, "/jobs", string(body), "poster-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var job JobPosting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, []string{"promo", "fpv"}, job.Tags)

	rec = f.call(t, h.UpdateJob, http.MethodPatch, "/jobs/"+job.ID, `{"location":"Da Lat","tags":["sunset"]}`, "poster-1", job.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, "Da Lat", job.Location)
	require.Equal(t, []string{"sunset"}, job.Tags)
	require.Equal(t, 300.0, job.Pay.Amount)

	rec = f.call(t, h.UpdateJob, http.MethodPatch, "/jobs/"+job.ID, `{"pay":{"amount":-1,"unit":"hour","currency":"USD"}}`, "poster-1", job.ID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.call(t, h.UpdateJob, http.MethodPatch, "/jobs/"+job.ID, `{"location":"Hue"}`, "poster-2", job.ID)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.call(t, h.ListJobs, http.MethodGet, "/jobs?location=da%20lat&pay_unit=project&sort=highest_pay", "", "seeker-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), job.ID)
	rec = f.call(t, h.ListJobs, http.MethodGet, "/jobs?pay_unit=day", "", "seeker-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.call(t, h.ListJobs, http.MethodGet, "/jobs?sort=cheapest", "", "seeker-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(t, h.ToggleSavedJob, http.MethodPost, "/jobs/"+job.ID+"/save", "", "seeker-1", job.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"saved":true`)
	rec = f.call(t, h.SavedJobs, http.MethodGet, "/jobs/saved", "", "seeker-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), job.ID)
	rec = f.call(t, h.ToggleSavedJob, http.MethodPost, "/jobs/missing/save", "", "seeker-1", "missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
