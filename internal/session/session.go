// Package session owns the portal session lifecycle: login with its
// post-login dialog gauntlet, provider selection, and the
// logout-or-detach discipline that keeps at most one open server-side
// session per run.
package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
)

// Session is an authenticated portal session. It is exclusively owned by
// one automation run and must be torn down through Close on every exit
// path; Detach is the one sanctioned alternative, handing the server-side
// token to the HTTP fast path.
type Session struct {
	page     driver.Page
	loginURL string

	// Provider is the currently selected SPN id, empty until
	// SelectProvider succeeds.
	Provider string

	// PasswordExpiryDays is set when the portal showed an expiry notice
	// during login.
	PasswordExpiryDays *int

	detached bool
	closed   bool
}

// Page exposes the underlying driver page for the engines.
func (s *Session) Page() driver.Page { return s.page }

// BaseURL returns the portal base derived from the login endpoint.
func (s *Session) BaseURL() string {
	return strings.TrimSuffix(s.loginURL, "/login")
}

// Logout ends the server-side session if the page still shows a Logout
// control. Best effort: a failed logout is logged, not fatal, since the
// portal expires idle sessions on its own.
func (s *Session) Logout(ctx context.Context) {
	body, err := s.page.BodyText(ctx)
	if err != nil || !strings.Contains(body, "Logout") {
		return
	}
	if err := s.page.ClickText(ctx, "Logout"); err != nil {
		zap.L().Warn("logout failed", zap.Error(err))
		return
	}
	_ = s.page.WaitSettle(ctx)
	zap.L().Info("logged out of portal")
}

// Detach extracts the session token and closes the backend without
// logging out, so the token remains valid server-side for the HTTP
// fast path. After Detach the session is spent.
func (s *Session) Detach(ctx context.Context) (string, error) {
	token, err := s.page.SessionToken(ctx)
	if err != nil {
		return "", err
	}
	s.detached = true
	if err := s.page.Close(ctx); err != nil {
		zap.L().Warn("closing detached page backend", zap.Error(err))
	}
	return token, nil
}

// Close tears the session down: logout unless the token was deliberately
// detached, then release the backend. Safe to defer and to call twice.
func (s *Session) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	if !s.detached {
		s.Logout(ctx)
		if err := s.page.Close(ctx); err != nil {
			zap.L().Warn("closing page backend", zap.Error(err))
		}
	}
}
