package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseToken(t *testing.T) {
	now := time.Now()
	tok, err := IssueToken("s3cret", "u1", RolePoster, time.Hour, now)
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, RolePoster, claims.Role)

	_, err = ParseToken("other", tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenExpired(t *testing.T) {
	tok, err := IssueToken("s3cret", "u1", RoleSeeker, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken("s3cret", tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	_, err := IssueToken("s3cret", "u1", "fan", time.Hour, time.Now())
	require.Error(t, err)
}

func TestMe(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), rec)
	require.NoError(t, Me(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), rec)
	c.Set("user_id", "u1")
	c.Set("role", RoleSeeker)
	require.NoError(t, Me(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_id":"u1","role":"seeker"}`, rec.Body.String())
}
