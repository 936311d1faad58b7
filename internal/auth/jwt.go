package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Token uses distinguish access from refresh tokens.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims represents JWT payload. It carries the session projection so handlers need
// no lookup to know who is calling.
type Claims struct {
	Role   Role   `json:"role"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	RollNo string `json:"rollNo,omitempty"`
	Use    string `json:"use"`
	jwt.RegisteredClaims
}

// Session rebuilds the session carried by the token.
func (c Claims) Session() Session {
	return Session{
		ID:     c.Subject,
		Name:   c.Name,
		Email:  c.Email,
		RollNo: c.RollNo,
		Role:   c.Role,
	}
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewTokens creates a token issuer.
func NewTokens(issuer, key string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		Issuer:     issuer,
		Key:        []byte(key),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue issues signed access and refresh tokens for sess.
func (t *Tokens) Issue(sess Session) (TokenPair, error) {
	now := t.now()
	accessExp := now.Add(t.AccessTTL)
	refreshExp := now.Add(t.RefreshTTL)

	accessToken, err := t.sign(sess, UseAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := t.sign(sess, UseRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (t *Tokens) sign(sess Session, use string, issued, exp time.Time) (string, error) {
	claims := Claims{
		Role:   sess.Role,
		Name:   sess.Name,
		Email:  sess.Email,
		RollNo: sess.RollNo,
		Use:    use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   sess.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Key)
}

// Parse validates a token of the given use and returns claims.
func (t *Tokens) Parse(tokenStr, use string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.Key, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if t.Issuer != "" && claims.Issuer != t.Issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Use != use {
		return Claims{}, errors.New("wrong token use")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}
