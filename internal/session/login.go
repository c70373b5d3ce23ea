package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/credentials"
	"github.com/brightpath-ops/ebilling-cli/internal/driver"
)

// FailureReason classifies a terminal login failure.
type FailureReason string

const (
	ReasonInvalidCredentials  FailureReason = "invalid_credentials"
	ReasonEndpointUnreachable FailureReason = "endpoint_unreachable"
	ReasonStuckInDialogs      FailureReason = "stuck_in_dialogs"
)

// LoginError is a fatal, non-retryable login failure. Callers decide
// whether to retry a whole run; this package never retries on its own.
type LoginError struct {
	Reason FailureReason
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("login failed: %s", e.Reason)
}

func (e *LoginError) Unwrap() error { return e.Err }

// maxDialogRounds bounds the post-login dialog-resolution loop. The portal
// presents its interstitials in arbitrary order, zero or more times each.
const maxDialogRounds = 5

var expiryPattern = regexp.MustCompile(`password will expire in (\d+) day`)

// Page-state markers the dialog loop switches on.
const (
	markerAgreement   = "I do not agree"
	markerProfilePage = "User Profile of"
	markerReady       = "Service Provider Selection"
)

// Login authenticates against the given regional login endpoint and walks
// the post-login dialog gauntlet until the provider-selection anchor is
// reached.
//
// State machine: Unauthenticated → CredentialsSubmitted →
// DialogResolutionLoop → Ready, or Failed with a terminal LoginError.
func Login(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL string) (*Session, error) {
	log := zap.L().With(zap.String("endpoint", loginURL))
	log.Info("logging in to portal")

	if err := page.Navigate(ctx, loginURL); err != nil {
		return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
	}

	if err := page.FillField(ctx, "username", creds.Username); err != nil {
		return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
	}
	if err := page.FillField(ctx, "password", creds.Password); err != nil {
		return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
	}
	if err := page.ClickText(ctx, "Login"); err != nil {
		return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
	}
	if err := page.WaitSettle(ctx); err != nil {
		return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
	}

	// Invalid credentials leave us on the login form with an error
	// indicator; the portal does not navigate anywhere.
	if strings.Contains(page.CurrentURL(), "/login") {
		body, err := page.BodyText(ctx)
		if err != nil {
			return nil, &LoginError{Reason: ReasonEndpointUnreachable, Err: err}
		}
		lower := strings.ToLower(body)
		if strings.Contains(lower, "invalid") || strings.Contains(lower, "incorrect") {
			return nil, &LoginError{Reason: ReasonInvalidCredentials}
		}
	}

	sess := &Session{page: page, loginURL: loginURL}

	for round := 0; round < maxDialogRounds; round++ {
		if err := page.WaitSettle(ctx); err != nil {
			return nil, &LoginError{Reason: ReasonStuckInDialogs, Err: err}
		}
		body, err := page.BodyText(ctx)
		if err != nil {
			return nil, &LoginError{Reason: ReasonStuckInDialogs, Err: err}
		}

		switch {
		case expiryPattern.MatchString(body):
			m := expiryPattern.FindStringSubmatch(body)
			days, _ := strconv.Atoi(m[1])
			sess.PasswordExpiryDays = &days
			log.Warn("password expiry notice", zap.Int("days", days))
			if err := page.ClickText(ctx, "OK"); err != nil {
				return nil, &LoginError{Reason: ReasonStuckInDialogs, Err: err}
			}

		case strings.Contains(body, markerAgreement):
			// Agreement check runs before the profile check: the "My
			// Profile" nav link shows on every page including this one.
			log.Info("accepting user agreement")
			if err := clickFirst(ctx, page, "Accept", "I Agree", "ACCEPT"); err != nil {
				return nil, &LoginError{Reason: ReasonStuckInDialogs, Err: err}
			}

		case strings.Contains(body, markerProfilePage):
			log.Info("dismissing forced profile page")
			if err := page.ClickText(ctx, "Close"); err != nil {
				return nil, &LoginError{Reason: ReasonStuckInDialogs, Err: err}
			}

		case strings.Contains(body, markerReady):
			log.Info("login complete, at provider selection")
			return sess, nil

		default:
			// No recognized dialog and no ready marker yet; give the
			// page another settle round.
		}
	}

	return nil, &LoginError{Reason: ReasonStuckInDialogs}
}

// clickFirst clicks the first of the given labels that exists on the page.
func clickFirst(ctx context.Context, page driver.Page, labels ...string) error {
	var lastErr error
	for _, label := range labels {
		err := page.ClickText(ctx, label)
		if err == nil {
			return nil
		}
		if !driver.IsKind(err, driver.KindNotFound) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
