package session

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
)

// Provider is one multi-tenant service-provider identity reachable from a
// login.
type Provider struct {
	SPN  string
	Name string
}

// ErrProviderNotFound is returned when no selection strategy matched.
// Fatal for the run: nothing downstream has a valid context without a
// selected provider.
var ErrProviderNotFound = eris.New("session: provider not found")

// ErrAnchorLost is returned when navigation back to the provider
// selection anchor fails.
var ErrAnchorLost = eris.New("session: provider selection anchor unreachable")

// spnPattern matches an SPN id cell: two letters then digits.
var spnPattern = regexp.MustCompile(`^[A-Za-z]{2}\d+$`)

// SelectProvider chooses the active provider context by a layered match:
// exact SPN id, then numeric suffix of the id (prefixes are inconsistent
// across regional deployments), then case-insensitive substring of the
// display name. First hit wins; a confirmation dialog is dismissed if
// shown.
func (s *Session) SelectProvider(ctx context.Context, identifier string) error {
	log := zap.L().With(zap.String("provider", identifier))

	strategies := []struct {
		name  string
		match func(cells []string) bool
	}{
		{"exact_spn", func(cells []string) bool {
			for _, c := range cells {
				if strings.EqualFold(strings.TrimSpace(c), identifier) {
					return true
				}
			}
			return false
		}},
		{"numeric_suffix", numericSuffixMatcher(identifier)},
		{"name_substring", func(cells []string) bool {
			needle := strings.ToLower(identifier)
			for _, c := range cells {
				if strings.Contains(strings.ToLower(c), needle) {
					return true
				}
			}
			return false
		}},
	}

	for _, strat := range strategies {
		if strat.match == nil {
			continue
		}
		err := s.page.ClickRowLink(ctx, strat.match, "select")
		if err == nil {
			log.Info("provider selected", zap.String("strategy", strat.name))
			// Confirmation dialog is optional; absence is fine.
			if err := s.page.ClickText(ctx, "OK"); err != nil && !driver.IsKind(err, driver.KindNotFound) {
				return eris.Wrap(err, "session: confirm provider selection")
			}
			if err := s.page.WaitSettle(ctx); err != nil {
				return eris.Wrap(err, "session: settle after provider selection")
			}
			s.Provider = identifier
			return nil
		}
		if !driver.IsKind(err, driver.KindNotFound) {
			return eris.Wrap(err, "session: select provider")
		}
	}

	return eris.Wrapf(ErrProviderNotFound, "identifier %q", identifier)
}

// numericSuffixMatcher matches an SPN cell whose digits equal the digits
// of identifier, regardless of the alphabetic prefix (HP1829 vs PP1829).
func numericSuffixMatcher(identifier string) func(cells []string) bool {
	digits := digitsOf(identifier)
	if digits == "" {
		return nil
	}
	return func(cells []string) bool {
		for _, c := range cells {
			c = strings.TrimSpace(c)
			if spnPattern.MatchString(c) && digitsOf(c) == digits {
				return true
			}
		}
		return false
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ListProviders reads every provider row from the selection grid without
// selecting any, for the batch mode that scans all identities under one
// login.
func (s *Session) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.page.TableRows(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "session: read provider grid")
	}

	var out []Provider
	seen := make(map[string]bool)
	for _, cells := range rows {
		var spn, name string
		for _, c := range cells {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if spn == "" && spnPattern.MatchString(c) {
				spn = strings.ToUpper(c)
			} else if name == "" && !spnPattern.MatchString(c) {
				name = c
			}
		}
		if spn == "" || seen[spn] {
			continue
		}
		seen[spn] = true
		out = append(out, Provider{SPN: spn, Name: name})
	}

	zap.L().Info("providers enumerated", zap.Int("count", len(out)))
	return out, nil
}

// ReturnToSelection navigates back to the provider-selection anchor
// between providers in a batch scan. Tries the Home tab, then the
// Dashboard sub-tab.
func (s *Session) ReturnToSelection(ctx context.Context) error {
	for _, tab := range []string{"Home", "Dashboard"} {
		if err := s.page.ClickText(ctx, tab); err != nil {
			if driver.IsKind(err, driver.KindNotFound) {
				continue
			}
			return eris.Wrapf(err, "session: click %s", tab)
		}
		if err := s.page.WaitSettle(ctx); err != nil {
			return eris.Wrap(err, "session: settle after nav")
		}
		body, err := s.page.BodyText(ctx)
		if err != nil {
			return eris.Wrap(err, "session: read page after nav")
		}
		if strings.Contains(body, markerReady) {
			s.Provider = ""
			return nil
		}
	}
	return ErrAnchorLost
}
