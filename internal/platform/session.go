// Package platform handles everything that touches the content platform:
// session login and persistence, the private feed API, and request pacing.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Session is a snapshot of an authenticated browser session: the cookie jar
// captured after login. It is persisted as JSON so restarts reuse the login.
type Session struct {
	Cookies   []*proto.NetworkCookie `json:"cookies"`
	CreatedAt time.Time              `json:"created_at"`
}

// CookieHeader renders the cookies as a single Cookie header value.
func (s *Session) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// CookieValue returns the named cookie's value, or "" when absent.
func (s *Session) CookieValue(name string) string {
	for _, c := range s.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// SessionConfig configures login and session persistence.
type SessionConfig struct {
	Username  string
	Password  string
	BaseURL   string
	UserAgent string
	Headless  bool
	Timeout   time.Duration
	AuthFile  string
}

// SessionManager owns the persisted session artifact. Obtain is the only
// entry point the rest of the system uses: it returns a verified session,
// logging in through a real browser when no usable artifact exists.
type SessionManager struct {
	cfg   SessionConfig
	log   *zap.Logger
	httpc *http.Client

	// loginFn performs the interactive browser login. Swapped in tests.
	loginFn func(ctx context.Context) (*Session, error)

	mu     sync.Mutex
	cached *Session
}

// NewSessionManager creates a session manager backed by a rod browser login.
func NewSessionManager(cfg SessionConfig, log *zap.Logger) *SessionManager {
	m := &SessionManager{
		cfg: cfg,
		log: log,
		httpc: &http.Client{
			Timeout: cfg.Timeout,
			// The warm-up probe must see the login redirect, not follow it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	m.loginFn = m.browserLogin
	return m
}

// Obtain returns a verified session. It prefers the in-memory session, then
// the on-disk artifact; either one is probed against the platform before
// being handed out. A stale session is discarded and ErrSessionInvalid is
// returned so the caller can retry, at which point Obtain logs in fresh.
func (m *SessionManager) Obtain(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.cached
	if sess == nil {
		loaded, err := m.loadArtifact()
		if err != nil {
			return nil, err
		}
		sess = loaded
	}

	if sess != nil {
		if err := m.probe(ctx, sess); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warn("stored session rejected by platform, discarding",
				zap.Time("session_created_at", sess.CreatedAt),
				zap.Error(err))
			m.invalidateLocked()
			return nil, ErrSessionInvalid
		}
		m.cached = sess
		return sess, nil
	}

	m.log.Info("no stored session, performing browser login",
		zap.String("username", m.cfg.Username))
	fresh, err := m.loginFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("browser login: %w", err)
	}
	if err := m.saveArtifact(fresh); err != nil {
		m.log.Warn("session artifact not persisted", zap.Error(err))
	}
	m.cached = fresh
	return fresh, nil
}

// Invalidate discards the in-memory session and deletes the artifact.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

func (m *SessionManager) invalidateLocked() {
	m.cached = nil
	if m.cfg.AuthFile == "" {
		return
	}
	if err := os.Remove(m.cfg.AuthFile); err != nil && !os.IsNotExist(err) {
		m.log.Warn("remove session artifact", zap.Error(err))
	}
}

// probe hits the authenticated main feed. A redirect to the login page or an
// error status means the platform no longer honors the session.
func (m *SessionManager) probe(ctx context.Context, sess *Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Cookie", sess.CookieHeader())

	resp, err := m.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if strings.Contains(loc, "/accounts/login") {
			return errors.New("redirected to login")
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

func (m *SessionManager) loadArtifact() (*Session, error) {
	if m.cfg.AuthFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.cfg.AuthFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session artifact: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Corrupt artifact. Drop it and log in fresh.
		m.log.Warn("session artifact unreadable, discarding", zap.Error(err))
		_ = os.Remove(m.cfg.AuthFile)
		return nil, nil
	}
	if len(sess.Cookies) == 0 {
		return nil, nil
	}
	return &sess, nil
}

func (m *SessionManager) saveArtifact(sess *Session) error {
	if m.cfg.AuthFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.AuthFile), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.cfg.AuthFile, data, 0o600)
}

// browserLogin drives a real browser through the login form and snapshots
// the resulting cookie jar. Interactive challenges (2FA, suspicious-login
// prompts) are the operator's to click through when headless is off.
func (m *SessionManager) browserLogin(ctx context.Context) (*Session, error) {
	url, err := launcher.New().Headless(m.cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: m.cfg.BaseURL + "/accounts/login/"})
	if err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	page = page.Timeout(m.cfg.Timeout)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load login page: %w", err)
	}

	userEl, err := page.Element(`input[name="username"]`)
	if err != nil {
		return nil, fmt.Errorf("find username field: %w", err)
	}
	if err := userEl.Input(m.cfg.Username); err != nil {
		return nil, fmt.Errorf("fill username: %w", err)
	}
	passEl, err := page.Element(`input[name="password"]`)
	if err != nil {
		return nil, fmt.Errorf("find password field: %w", err)
	}
	if err := passEl.Input(m.cfg.Password); err != nil {
		return nil, fmt.Errorf("fill password: %w", err)
	}
	submit, err := page.Element(`button[type="submit"]`)
	if err != nil {
		return nil, fmt.Errorf("find submit button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}

	sess, err := m.waitForSessionCookie(ctx, page)
	if err != nil {
		return nil, err
	}
	m.dismissPostLoginPrompts(page)

	m.log.Info("browser login complete",
		zap.Int("cookies", len(sess.Cookies)))
	return sess, nil
}

// waitForSessionCookie polls the cookie jar until the platform's session
// cookie appears. Slow because the operator may be solving a challenge.
func (m *SessionManager) waitForSessionCookie(ctx context.Context, page *rod.Page) (*Session, error) {
	deadline := time.Now().Add(m.cfg.Timeout)
	for {
		res, err := proto.NetworkGetCookies{}.Call(page)
		if err == nil {
			sess := &Session{Cookies: res.Cookies, CreatedAt: time.Now()}
			if sess.CookieValue("sessionid") != "" {
				return sess, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, errors.New("login did not produce a session cookie")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// dismissPostLoginPrompts clicks away the "save your login info" and
// notification dialogs when they appear. Best effort.
func (m *SessionManager) dismissPostLoginPrompts(page *rod.Page) {
	for i := 0; i < 2; i++ {
		el, err := page.Timeout(3 * time.Second).ElementR("button", "Not Now")
		if err != nil {
			return
		}
		_ = el.Click(proto.InputMouseButtonLeft, 1)
	}
}
