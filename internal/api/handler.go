// Package api exposes the student-services core over HTTP.
package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edustatus/internal/apperr"
	"edustatus/internal/auth"
	"edustatus/internal/derived"
	"edustatus/internal/logger"
	"edustatus/internal/report"
	"edustatus/internal/store"
	"edustatus/internal/submission"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	auth    *auth.Service
	tokens  *auth.Tokens
	tracker *submission.Tracker
	derived *derived.Generator
	store   *store.Store
	log     zerolog.Logger
}

func New(a *auth.Service, tokens *auth.Tokens, tracker *submission.Tracker, gen *derived.Generator, st *store.Store) *Handler {
	return &Handler{
		auth:    a,
		tokens:  tokens,
		tracker: tracker,
		derived: gen,
		store:   st,
		log:     logger.Get("api"),
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("store ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}

// ---------- Auth ----------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Session      auth.Session `json:"session"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req auth.SignupData
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badBody(err))
		return
	}
	sess, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusCreated, sess)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badBody(err))
		return
	}
	sess, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusOK, sess)
}

// Refresh exchanges a refresh token for a new pair. The account must still exist.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		h.fail(c, apperr.ErrNotAuthenticated)
		return
	}
	claims, err := h.tokens.Parse(req.RefreshToken, auth.UseRefresh)
	if err != nil {
		h.fail(c, apperr.ErrNotAuthenticated)
		return
	}
	_, ok, err := h.auth.Account(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		h.fail(c, apperr.ErrNotAuthenticated)
		return
	}
	h.issue(c, http.StatusOK, claims.Session())
}

// Logout is acknowledged only; clients discard their tokens.
func (h *Handler) Logout(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	h.log.Info().Str("user_id", sess.ID).Msg("logout")
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) issue(c *gin.Context, status int, sess auth.Session) {
	pair, err := h.tokens.Issue(sess)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, sessionResponse{
		Session:      sess,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp.Unix(),
	})
}

// ---------- Submissions ----------

func (h *Handler) SubmitNoDues(c *gin.Context) {
	var form submission.NoDuesForm
	if err := c.ShouldBindJSON(&form); err != nil {
		h.fail(c, badBody(err))
		return
	}
	sess, _ := auth.SessionFrom(c)
	if err := form.Validate(sess); err != nil {
		h.fail(c, err)
		return
	}
	h.submit(c, sess, submission.TypeNoDues, form.Details())
}

func (h *Handler) SubmitBonafide(c *gin.Context) {
	var form submission.BonafideForm
	if err := c.ShouldBindJSON(&form); err != nil {
		h.fail(c, badBody(err))
		return
	}
	sess, _ := auth.SessionFrom(c)
	if err := form.Validate(sess); err != nil {
		h.fail(c, err)
		return
	}
	h.submit(c, sess, submission.TypeBonafide, form.Details())
}

func (h *Handler) submit(c *gin.Context, sess auth.Session, typ submission.Type, details map[string]string) {
	sub, err := h.tracker.Submit(c.Request.Context(), sess.ID, typ, details)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) ListSubmissions(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	subs, err := h.tracker.ListForUser(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

// ---------- Derived data ----------

func (h *Handler) Fees(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	data, err := h.derived.GetOrCreate(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data.Fees)
}

func (h *Handler) Attendance(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	data, err := h.derived.GetOrCreate(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data.Attendance)
}

// ---------- Admin ----------

func (h *Handler) ListAllSubmissions(c *gin.Context) {
	subs, err := h.tracker.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (h *Handler) ExportSubmissions(c *gin.Context) {
	ctx := c.Request.Context()
	subs, err := h.tracker.ListAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	lookup := func(userID string) (report.Student, bool) {
		acc, ok, err := h.auth.Account(ctx, userID)
		if err != nil || !ok {
			return report.Student{}, false
		}
		return report.Student{Name: acc.Name, RollNo: acc.RollNo}, true
	}

	var buf bytes.Buffer
	if err := report.WriteSubmissions(&buf, subs, lookup); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="submissions.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
