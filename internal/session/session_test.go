package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-ops/ebilling-cli/internal/credentials"
	"github.com/brightpath-ops/ebilling-cli/internal/driver/drivertest"
)

const loginURL = "https://ebilling.example.gov:8379/login"

var creds = credentials.Credentials{Username: "provider1", Password: "hunter2"}

func TestLoginReachesProviderSelection(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{
		OnClickText: func(f *drivertest.FakePage, text string) error {
			if text == "Login" {
				f.URL = "https://ebilling.example.gov:8379/home"
				f.Body = "Service Provider Selection"
			}
			return nil
		},
	}

	sess, err := Login(context.Background(), page, creds, loginURL)
	require.NoError(t, err)
	assert.Equal(t, "provider1", page.Fields["username"])
	assert.Equal(t, "hunter2", page.Fields["password"])
	assert.Nil(t, sess.PasswordExpiryDays)
	assert.Equal(t, "https://ebilling.example.gov:8379", sess.BaseURL())
}

func TestLoginWalksDialogGauntlet(t *testing.T) {
	t.Parallel()

	// Portal shows expiry notice, then the agreement, then the forced
	// profile page, in that order, before the ready marker appears.
	page := &drivertest.FakePage{}
	page.OnClickText = func(f *drivertest.FakePage, text string) error {
		switch text {
		case "Login":
			f.URL = "https://ebilling.example.gov:8379/home"
			f.Body = "Your password will expire in 12 days"
		case "OK":
			f.Body = "I do not agree | Accept"
		case "Accept":
			f.Body = "User Profile of PROVIDER ONE"
		case "Close":
			f.Body = "Service Provider Selection"
		}
		return nil
	}

	sess, err := Login(context.Background(), page, creds, loginURL)
	require.NoError(t, err)
	require.NotNil(t, sess.PasswordExpiryDays)
	assert.Equal(t, 12, *sess.PasswordExpiryDays)
	assert.Contains(t, page.Clicks, "Accept")
	assert.Contains(t, page.Clicks, "Close")
}

func TestLoginInvalidCredentials(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{
		OnClickText: func(f *drivertest.FakePage, text string) error {
			if text == "Login" {
				// No navigation away from the login form.
				f.Body = "Invalid username or password"
			}
			return nil
		},
	}

	_, err := Login(context.Background(), page, creds, loginURL)
	var lerr *LoginError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ReasonInvalidCredentials, lerr.Reason)
}

func TestLoginStuckInDialogs(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{
		OnClickText: func(f *drivertest.FakePage, text string) error {
			if text == "Login" {
				f.URL = "https://ebilling.example.gov:8379/home"
			}
			// Profile page that never goes away.
			f.Body = "User Profile of PROVIDER ONE"
			return nil
		},
	}

	_, err := Login(context.Background(), page, creds, loginURL)
	var lerr *LoginError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ReasonStuckInDialogs, lerr.Reason)
}

func providerGrid() [][]string {
	return [][]string{
		{"PP0212", "BRIGHT PATH DAY PROGRAM"},
		{"HP1829", "BRIGHT PATH RESPITE"},
		{"PP0508", "SUNRISE SUPPORTS"},
	}
}

func newTestSession(page *drivertest.FakePage) *Session {
	return &Session{page: page, loginURL: loginURL}
}

func TestSelectProviderExact(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: providerGrid()}
	sess := newTestSession(page)

	require.NoError(t, sess.SelectProvider(context.Background(), "PP0212"))
	assert.Equal(t, []string{"select"}, page.RowClicks)
	assert.Equal(t, "PP0212", sess.Provider)
}

func TestSelectProviderNumericSuffix(t *testing.T) {
	t.Parallel()

	// Caller knows the identity as PP1829; the grid shows HP1829.
	page := &drivertest.FakePage{Rows: providerGrid()}
	sess := newTestSession(page)

	require.NoError(t, sess.SelectProvider(context.Background(), "PP1829"))
	assert.Equal(t, []string{"select"}, page.RowClicks)
}

func TestSelectProviderByName(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: providerGrid()}
	sess := newTestSession(page)

	require.NoError(t, sess.SelectProvider(context.Background(), "sunrise"))
	assert.Equal(t, []string{"select"}, page.RowClicks)
}

func TestSelectProviderNotFound(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: providerGrid()}
	sess := newTestSession(page)

	err := sess.SelectProvider(context.Background(), "ZZ9999")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestListProviders(t *testing.T) {
	t.Parallel()

	rows := providerGrid()
	rows = append(rows, []string{"PP0212", "BRIGHT PATH DAY PROGRAM"}) // duplicate row
	page := &drivertest.FakePage{Rows: rows}
	sess := newTestSession(page)

	providers, err := sess.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, Provider{SPN: "PP0212", Name: "BRIGHT PATH DAY PROGRAM"}, providers[0])
	assert.Equal(t, Provider{SPN: "HP1829", Name: "BRIGHT PATH RESPITE"}, providers[1])
}

func TestReturnToSelection(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{}
	page.OnClickText = func(f *drivertest.FakePage, text string) error {
		if text == "Home" {
			f.Body = "Service Provider Selection"
		}
		return nil
	}
	sess := newTestSession(page)
	sess.Provider = "PP0212"

	require.NoError(t, sess.ReturnToSelection(context.Background()))
	assert.Empty(t, sess.Provider)
}

func TestDetachSkipsLogout(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Token: "JSESSIONID=abc123", Body: "Logout"}
	sess := newTestSession(page)

	token, err := sess.Detach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "JSESSIONID=abc123", token)
	assert.True(t, page.Closed)

	// Close after detach must not try to log out.
	sess.Close(context.Background())
	assert.NotContains(t, page.Clicks, "Logout")
}

func TestCloseLogsOut(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Body: "Welcome | Logout"}
	sess := newTestSession(page)

	sess.Close(context.Background())
	assert.Contains(t, page.Clicks, "Logout")
	assert.True(t, page.Closed)

	// Second close is a no-op.
	clicks := len(page.Clicks)
	sess.Close(context.Background())
	assert.Len(t, page.Clicks, clicks)
}
