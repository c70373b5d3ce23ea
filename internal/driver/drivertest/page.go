// Package drivertest provides an in-memory scripted Page backend for
// engine tests.
package drivertest

import (
	"context"
	"regexp"
	"strconv"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
)

// ScrollStep is one scripted response to ScrollGrid: the rows the grid
// renders after the scroll plus the reported scroll state.
type ScrollStep struct {
	Rows  [][]string
	State driver.ScrollState
}

// FakePage is a scripted driver.Page. Zero value is usable; tests set the
// visible state directly and install hooks where a click must change it.
type FakePage struct {
	URL    string
	Body   string
	Fields map[string]string
	Rows   [][]string
	Days   map[int]*driver.DayCell

	// Scrolls is consumed front-to-back by ScrollGrid.
	Scrolls []ScrollStep

	// Hooks. A nil hook means the default: the operation succeeds
	// without changing state.
	OnNavigate     func(f *FakePage, url string) error
	OnClickText    func(f *FakePage, text string) error
	OnClickRowLink func(f *FakePage, cells []string, action string) error

	// Token is what SessionToken returns.
	Token string

	// Recorded activity.
	Clicks     []string
	RowClicks  []string
	FilledDays map[int]string
	Navigated  []string
	Closed     bool
}

var _ driver.Page = (*FakePage)(nil)

func (f *FakePage) Navigate(_ context.Context, url string) error {
	f.Navigated = append(f.Navigated, url)
	if f.OnNavigate != nil {
		if err := f.OnNavigate(f, url); err != nil {
			return err
		}
	}
	f.URL = url
	return nil
}

func (f *FakePage) CurrentURL() string { return f.URL }

func (f *FakePage) WaitSettle(context.Context) error { return nil }

func (f *FakePage) BodyText(context.Context) (string, error) { return f.Body, nil }

func (f *FakePage) ClickText(_ context.Context, text string) error {
	f.Clicks = append(f.Clicks, text)
	if f.OnClickText != nil {
		return f.OnClickText(f, text)
	}
	return nil
}

func (f *FakePage) FillField(_ context.Context, name, value string) error {
	if f.Fields == nil {
		f.Fields = make(map[string]string)
	}
	f.Fields[name] = value
	return nil
}

func (f *FakePage) FieldValue(_ context.Context, name string) (string, error) {
	v, ok := f.Fields[name]
	if !ok {
		return "", driver.Errorf(driver.KindNotFound, "field_value", "no field %q", name)
	}
	return v, nil
}

func (f *FakePage) CellsMatching(_ context.Context, pattern *regexp.Regexp) ([]string, error) {
	var out []string
	for _, row := range f.Rows {
		for _, cell := range row {
			if pattern.MatchString(cell) {
				out = append(out, cell)
			}
		}
	}
	return out, nil
}

func (f *FakePage) TableRows(context.Context) ([][]string, error) {
	return f.Rows, nil
}

func (f *FakePage) ClickRowLink(_ context.Context, match func(cells []string) bool, action string) error {
	for _, row := range f.Rows {
		if match(row) {
			f.RowClicks = append(f.RowClicks, action)
			if f.OnClickRowLink != nil {
				return f.OnClickRowLink(f, row, action)
			}
			return nil
		}
	}
	return driver.Errorf(driver.KindNotFound, "click_row_link", "no row for action %q", action)
}

func (f *FakePage) DayCells(context.Context) ([]driver.DayCell, error) {
	out := make([]driver.DayCell, 0, len(f.Days))
	for day := 1; day <= 31; day++ {
		if c, ok := f.Days[day]; ok && c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *FakePage) FillDay(_ context.Context, day int, value string) error {
	c, ok := f.Days[day]
	if !ok || c == nil || !c.HasInput {
		return driver.Errorf(driver.KindNotFound, "fill_day", "no input for day %d", day)
	}
	if c.Disabled {
		return driver.Errorf(driver.KindDisabled, "fill_day", "day %d is read-only", day)
	}
	if f.FilledDays == nil {
		f.FilledDays = make(map[int]string)
	}
	f.FilledDays[day] = value
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		c.Value = v
	}
	return nil
}

func (f *FakePage) SessionToken(context.Context) (string, error) {
	if f.Token == "" {
		return "", driver.Errorf(driver.KindNotFound, "session_token", "no session cookie")
	}
	return f.Token, nil
}

func (f *FakePage) Close(context.Context) error {
	f.Closed = true
	return nil
}

func (f *FakePage) ScrollGrid(context.Context) (driver.ScrollState, error) {
	if len(f.Scrolls) == 0 {
		return driver.ScrollState{Moved: false, AtBottom: true}, nil
	}
	step := f.Scrolls[0]
	f.Scrolls = f.Scrolls[1:]
	if step.Rows != nil {
		f.Rows = step.Rows
	}
	return step.State, nil
}
