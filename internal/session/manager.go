package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// CookieName is the name of the session cookie.
const CookieName = "washoku.sid"

const cookieIssuer = "washoku"

type cookieClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Options configures a Manager.
type Options struct {
	Store  Store
	Secret string
	TTL    time.Duration
	Secure bool
}

// Manager issues, resolves and revokes sessions. The cookie value is an
// HS256-signed token carrying the session id; the session itself lives in the Store.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager validates options and constructs a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, eris.New("session store is required")
	}
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, eris.New("session secret is required")
	}
	if opts.TTL <= 0 {
		return nil, eris.New("session ttl must be positive")
	}

	return &Manager{
		store:  opts.Store,
		secret: []byte(opts.Secret),
		ttl:    opts.TTL,
		secure: opts.Secure,
		now:    time.Now,
	}, nil
}

// Start creates a session for the user and returns the cookie to set.
func (m *Manager) Start(ctx context.Context, userID uint) (*http.Cookie, *Session, error) {
	if userID == 0 {
		return nil, nil, eris.New("user id is required")
	}

	id, err := newSessionID()
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	session := &Session{ID: id, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, nil, eris.Wrap(err, "storing session")
	}

	token, err := m.sign(session)
	if err != nil {
		return nil, nil, err
	}

	return m.cookie(token, session.ExpiresAt, int(m.ttl/time.Second)), session, nil
}

// Resolve returns the session referenced by a cookie value. Tampered or
// unknown cookies yield ErrSessionNotFound.
func (m *Manager) Resolve(ctx context.Context, cookieValue string) (*Session, error) {
	id, err := m.parse(cookieValue)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// End revokes the session referenced by the cookie value, if any, and returns
// a cookie that clears it in the browser.
func (m *Manager) End(ctx context.Context, cookieValue string) (*http.Cookie, error) {
	expired := m.cookie("", time.Unix(0, 0), -1)

	id, err := m.parse(cookieValue)
	if err != nil {
		return expired, nil
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return expired, eris.Wrap(err, "deleting session")
	}

	return expired, nil
}

// PurgeExpired removes sessions that have expired.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) sign(session *Session) (string, error) {
	claims := cookieClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cookieIssuer,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", eris.Wrap(err, "signing session cookie")
	}

	return token, nil
}

func (m *Manager) parse(cookieValue string) (string, error) {
	cookieValue = strings.TrimSpace(cookieValue)
	if cookieValue == "" {
		return "", eris.New("empty session cookie")
	}

	var claims cookieClaims
	_, err := jwt.ParseWithClaims(cookieValue, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", eris.Wrap(err, "parsing session cookie")
	}

	if claims.SessionID == "" {
		return "", eris.New("session cookie carries no session id")
	}

	return claims.SessionID, nil
}

func (m *Manager) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
