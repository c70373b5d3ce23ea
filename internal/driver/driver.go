// Package driver defines the seam between the automation engines and the
// thing that actually renders the portal: a browser-driven page, a headless
// DOM, or a scripted fake in tests. All portal-specific selectors live
// behind this interface; the engines above it only switch on error kinds.
package driver

import (
	"context"
	"regexp"
)

// Page is the narrow query/mutation surface one portal page exposes.
// Implementations are not safe for concurrent use; the engines drive a
// single page strictly sequentially.
type Page interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the page's current location.
	CurrentURL() string

	// WaitSettle blocks until in-flight renders and requests quiesce or
	// the context expires.
	WaitSettle(ctx context.Context) error

	// BodyText returns the page's visible text content.
	BodyText(ctx context.Context) (string, error)

	// ClickText clicks the first element whose trimmed text or value
	// equals text. Returns a KindNotFound error if no element matches.
	ClickText(ctx context.Context, text string) error

	// FillField sets the named input's value.
	FillField(ctx context.Context, name, value string) error

	// FieldValue reads the named input's current value.
	FieldValue(ctx context.Context, name string) (string, error)

	// CellsMatching returns the text of every grid/table cell whose
	// trimmed content matches pattern.
	CellsMatching(ctx context.Context, pattern *regexp.Regexp) ([]string, error)

	// TableRows returns the currently rendered data rows as cell text,
	// merged across grid views where the backend splits columns.
	TableRows(ctx context.Context) ([][]string, error)

	// ClickRowLink clicks the action link (EDIT, a cell link) in the
	// first row for which match returns true. Returns KindNotFound if
	// no row matches or the row has no such link.
	ClickRowLink(ctx context.Context, match func(cells []string) bool, action string) error

	// DayCells returns the state of every day cell on an open calendar.
	DayCells(ctx context.Context) ([]DayCell, error)

	// FillDay writes a unit value into the input of an enterable day
	// cell. Returns KindDisabled for disabled cells and KindNotFound
	// for days without an input.
	FillDay(ctx context.Context, day int, value string) error

	// ScrollGrid scrolls the virtualized grid container down one
	// viewport and reports whether anything moved.
	ScrollGrid(ctx context.Context) (ScrollState, error)

	// SessionToken returns the authenticated-session cookie value the
	// backend currently carries, for hand-off to the HTTP fast path.
	SessionToken(ctx context.Context) (string, error)

	// Close releases the backend (browser window, DOM) without touching
	// the server-side session.
	Close(ctx context.Context) error
}

// DayCell describes one day-of-month cell on the unit calendar.
type DayCell struct {
	Day      int
	HasInput bool
	Disabled bool
	Value    float64
}

// ScrollState reports the outcome of one grid scroll step.
type ScrollState struct {
	Moved    bool
	AtBottom bool
}
