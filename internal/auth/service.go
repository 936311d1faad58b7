package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edustatus/internal/apperr"
	"edustatus/internal/logger"
	"edustatus/internal/metrics"
	"edustatus/internal/store"
)

// Role is the access level carried by a session.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Account is a registered user as persisted in the accounts collection.
// Passwords are stored and compared as plaintext.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RollNo     string `json:"rollNo"`
	Department string `json:"department"`
	Year       int    `json:"year"`
	Semester   int    `json:"semester"`
	Role       Role   `json:"role"`
}

// Session is the public projection of an authenticated account.
type Session struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	RollNo string `json:"rollNo,omitempty"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the session belongs to the administrator.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// SignupData is the registration form. Year and semester are not range-checked here;
// anything other than the eligible cohort is rejected with ErrIneligibleCohort.
type SignupData struct {
	Name       string `json:"name" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	RollNo     string `json:"rollNo" validate:"required,rollno"`
	Department string `json:"department" validate:"required,min=2"`
	Year       int    `json:"year"`
	Semester   int    `json:"semester"`
}

// The administrator is not stored; it always exists.
var admin = Account{
	ID:       "admin",
	Name:     "Admin",
	Email:    "admin@edustatus.com",
	Password: "admin123",
	Role:     RoleAdmin,
}

const (
	eligibleYear     = 3
	eligibleSemester = 5
)

// Service checks credentials against stored accounts and tracks the current session.
type Service struct {
	accounts *store.Sequence[Account]
	persist  *store.Value[Session]
	log      zerolog.Logger

	mu      sync.RWMutex
	current *Session
}

// NewService builds the facade over st and restores the persisted session, if any.
func NewService(ctx context.Context, st *store.Store) (*Service, error) {
	s := &Service{
		accounts: store.NewSequence(st, store.KindAccounts,
			func(a Account) string { return a.ID },
			func(a *Account) { a.ID = "user_" + uuid.NewString() }),
		persist: store.NewValue[Session](st, store.KindSession),
		log:     logger.Get("auth"),
	}
	sess, ok, err := s.persist.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if ok {
		s.current = &sess
	}
	return s, nil
}

// Authenticate checks credentials without touching the current session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	if email == admin.Email && password == admin.Password {
		metrics.Logins.WithLabelValues(string(RoleAdmin), "ok").Inc()
		return project(admin), nil
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, a := range accounts {
		if a.Email == email && a.Password == password {
			metrics.Logins.WithLabelValues(string(RoleStudent), "ok").Inc()
			return project(a), nil
		}
	}
	metrics.Logins.WithLabelValues("unknown", "invalid").Inc()
	s.log.Info().Str("email", email).Msg("login rejected")
	return Session{}, apperr.ErrInvalidCredentials
}

// Register validates data and appends a new student account.
func (s *Service) Register(ctx context.Context, data SignupData) (Session, error) {
	sess, err := s.register(ctx, data)
	metrics.Signups.WithLabelValues(metrics.Result(err)).Inc()
	return sess, err
}

func (s *Service) register(ctx context.Context, data SignupData) (Session, error) {
	if err := validateSignup(data); err != nil {
		return Session{}, err
	}

	acc, err := s.accounts.AppendIf(ctx, Account{
		Name:       data.Name,
		Email:      data.Email,
		Password:   data.Password,
		RollNo:     data.RollNo,
		Department: data.Department,
		Year:       data.Year,
		Semester:   data.Semester,
		Role:       RoleStudent,
	}, func(accounts []Account, _ *Account) error {
		for _, a := range accounts {
			if a.Email == data.Email {
				return apperr.ErrDuplicateEmail
			}
		}
		for _, a := range accounts {
			if a.RollNo == data.RollNo {
				return apperr.ErrDuplicateRollNo
			}
		}
		if data.Year != eligibleYear || data.Semester != eligibleSemester {
			return apperr.ErrIneligibleCohort
		}
		return nil
	})
	if err != nil {
		if apperr.Kind(err) == "Internal" {
			err = fmt.Errorf("save account: %w", err)
		}
		return Session{}, err
	}
	s.log.Info().Str("user_id", acc.ID).Str("roll_no", acc.RollNo).Msg("account created")
	return project(acc), nil
}

// Login authenticates and makes the result the current session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	sess, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return sess, s.establish(ctx, sess)
}

// Signup registers and makes the new account the current session.
func (s *Service) Signup(ctx context.Context, data SignupData) (Session, error) {
	sess, err := s.Register(ctx, data)
	if err != nil {
		return Session{}, err
	}
	return sess, s.establish(ctx, sess)
}

// Logout clears the current session.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return s.persist.Clear(ctx)
}

// CurrentSession returns the active session, if any.
func (s *Service) CurrentSession() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// RequireSession is CurrentSession for callers that cannot proceed without one.
func (s *Service) RequireSession() (Session, error) {
	sess, ok := s.CurrentSession()
	if !ok {
		return Session{}, apperr.ErrNotAuthenticated
	}
	return sess, nil
}

// Account returns the stored account behind a student session.
func (s *Service) Account(ctx context.Context, id string) (Account, bool, error) {
	if id == admin.ID {
		return admin, true, nil
	}
	return s.accounts.Get(ctx, id)
}

func (s *Service) establish(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.Set(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.current = &sess
	return nil
}

func project(a Account) Session {
	return Session{
		ID:     a.ID,
		Name:   a.Name,
		Email:  a.Email,
		RollNo: a.RollNo,
		Role:   a.Role,
	}
}
