package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"edustatus/internal/auth"
	"edustatus/internal/derived"
	"edustatus/internal/store"
	"edustatus/internal/submission"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st, err := store.Open(ctx, store.NewMemoryMedium())
	require.NoError(t, err)
	svc, err := auth.NewService(ctx, st)
	require.NoError(t, err)

	h := New(
		svc,
		auth.NewTokens("edustatus-test", "test-key", time.Minute, time.Hour),
		submission.NewTracker(st),
		derived.NewGenerator(st, nil),
		st,
	)
	return &testServer{t: t, router: h.Router(RouterOptions{AuthRateLimitPerMin: 0})}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Fields []struct {
		Field string `json:"field"`
	} `json:"fields"`
}

func signupBody() map[string]any {
	return map[string]any{
		"name": "Asha", "email": "a@x.com", "password": "secret1",
		"rollNo": "CB2201", "department": "CSE", "year": 3, "semester": 5,
	}
}

func (s *testServer) signup() sessionResponse {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/auth/signup", "", signupBody())
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[sessionResponse](s.t, w)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)

	created := s.signup()
	assert.Equal(t, "CB2201", created.Session.RollNo)
	assert.Equal(t, auth.RoleStudent, created.Session.Role)
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.RefreshToken)

	w := s.do(http.MethodPost, "/v1/auth/signup", "", signupBody())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateEmail", decode[errorBody](t, w).Code)

	w = s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Session, decode[sessionResponse](t, w).Session)

	w = s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "InvalidCredentials", decode[errorBody](t, w).Code)

	w = s.do(http.MethodGet, "/v1/me", created.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Session, decode[auth.Session](t, w))
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t)
	s.signup()

	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{"duplicate roll number", func(b map[string]any) { b["email"] = "b@x.com" }, http.StatusConflict, "DuplicateRollNo"},
		{"ineligible cohort", func(b map[string]any) { b["email"] = "c@x.com"; b["rollNo"] = "CB2202"; b["year"] = 2 }, http.StatusUnprocessableEntity, "IneligibleCohort"},
		{"invalid roll number", func(b map[string]any) { b["email"] = "d@x.com"; b["rollNo"] = "2203" }, http.StatusBadRequest, "Validation"},
		{"one letter name", func(b map[string]any) { b["email"] = "e@x.com"; b["rollNo"] = "CB2204"; b["name"] = "A" }, http.StatusBadRequest, "Validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := signupBody()
			tt.mutate(body)
			w := s.do(http.MethodPost, "/v1/auth/signup", "", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, w).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/me", "/v1/submissions", "/v1/fees", "/v1/attendance", "/v1/admin/submissions"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "NotAuthenticated", decode[errorBody](t, w).Code, path)
	}

	w := s.do(http.MethodGet, "/v1/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	created := s.signup()
	w = s.do(http.MethodGet, "/v1/me", created.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh token is not an access token")
}

func TestSubmissions(t *testing.T) {
	s := newTestServer(t)
	token := s.signup().AccessToken

	noDues := map[string]any{"rollNo": "CB2201", "department": "CSE", "year": 3, "semester": 5, "reason": "leaving the hostel"}
	w := s.do(http.MethodPost, "/v1/no-dues", token, noDues)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[submission.Submission](t, w)
	assert.Equal(t, submission.TypeNoDues, sub.Type)
	assert.Equal(t, submission.StatusApproved, sub.Status)
	assert.Equal(t, "leaving the hostel", sub.Details["reason"])

	w = s.do(http.MethodPost, "/v1/no-dues", token, noDues)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateSubmissionToday", decode[errorBody](t, w).Code)

	w = s.do(http.MethodPost, "/v1/bonafide", token, map[string]any{"rollNo": "CB2201", "purpose": "visa"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	eb := decode[errorBody](t, w)
	require.Len(t, eb.Fields, 1)
	assert.Equal(t, "purpose", eb.Fields[0].Field)

	w = s.do(http.MethodPost, "/v1/bonafide", token, map[string]any{"rollNo": "CB2201", "purpose": "passport application"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/v1/submissions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Submissions []submission.Submission `json:"submissions"`
	}](t, w)
	require.Len(t, list.Submissions, 2)
	assert.Equal(t, sub.ID, list.Submissions[0].ID)
}

func TestSubmissionsUseOwnRollNo(t *testing.T) {
	s := newTestServer(t)
	token := s.signup().AccessToken

	forms := map[string]map[string]any{
		"/v1/no-dues":  {"rollNo": "CB9999", "department": "CSE", "year": 3, "semester": 5, "reason": "leaving the hostel"},
		"/v1/bonafide": {"rollNo": "CB9999", "purpose": "passport application"},
	}
	for path, body := range forms {
		w := s.do(http.MethodPost, path, token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		eb := decode[errorBody](t, w)
		assert.Equal(t, "Validation", eb.Code)
		require.Len(t, eb.Fields, 1)
		assert.Equal(t, "rollNo", eb.Fields[0].Field)
	}

	w := s.do(http.MethodGet, "/v1/submissions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Submissions []submission.Submission `json:"submissions"`
	}](t, w).Submissions)
}

func TestDerivedData(t *testing.T) {
	s := newTestServer(t)
	token := s.signup().AccessToken

	w := s.do(http.MethodGet, "/v1/fees", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fees := decode[derived.Fees](t, w)
	assert.Equal(t, derived.TotalFees, fees.Total)
	assert.Equal(t, fees.Total-fees.Paid, fees.Balance)

	w = s.do(http.MethodGet, "/v1/attendance", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	att := decode[derived.Attendance](t, w)
	assert.Equal(t, derived.TotalDays, att.TotalDays)
	assert.Equal(t, att.AbsentDays*derived.FinePerAbsence, att.Fine)

	// Same figures on every visit.
	w = s.do(http.MethodGet, "/v1/fees", token, nil)
	assert.Equal(t, fees, decode[derived.Fees](t, w))
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	student := s.signup().AccessToken
	w := s.do(http.MethodPost, "/v1/bonafide", student, map[string]any{"rollNo": "CB2201", "purpose": "passport application"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/v1/admin/submissions", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", decode[errorBody](t, w).Code)

	w = s.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "admin@edustatus.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	adminLogin := decode[sessionResponse](t, w)
	assert.True(t, adminLogin.Session.IsAdmin())
	admin := adminLogin.AccessToken

	w = s.do(http.MethodGet, "/v1/admin/submissions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Submissions []submission.Submission `json:"submissions"`
	}](t, w)
	assert.Len(t, all.Submissions, 1)

	w = s.do(http.MethodGet, "/v1/admin/submissions/export", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Asha", rows[1][2])
	assert.Equal(t, "CB2201", rows[1][3])
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	created := s.signup()

	w := s.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": created.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := decode[sessionResponse](t, w)
	assert.Equal(t, created.Session, refreshed.Session)

	w = s.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": created.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/auth/logout", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":true}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
