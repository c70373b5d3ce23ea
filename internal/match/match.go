// Package match pairs billing records with scraped inventory. Matching is
// pure: it never touches the portal, so it can run repeatedly over the
// same inputs and is trivially testable.
package match

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// Matcher resolves each billing record to the invoice or consumer line it
// must be entered on.
type Matcher struct {
	inventory []model.InventoryItem

	// direct indexes invoices and expanded consumer lines by
	// (uci, month), independent of how the grid rendered the service
	// code. First hit wins.
	direct map[uciKey][]int
	// byUCI indexes the same items by (svc, month, uci), the fallback
	// for records whose UCI collides across service codes.
	byUCI map[key][]int
	// folders indexes multi-consumer folders by (svc, month).
	folders map[monthKey][]int
	// anyMonth tracks which svc codes appear at all, to distinguish
	// a wrong month from a wholly absent service code.
	anyMonth map[string]bool
}

type uciKey struct {
	uci   string
	month string
}

type key struct {
	svc   string
	month string
	uci   string
}

type monthKey struct {
	svc   string
	month string
}

// New builds a Matcher over the given inventory. Consumer lines produced
// by folder expansion may be appended later with AddLines.
func New(inventory []model.InventoryItem) *Matcher {
	m := &Matcher{
		inventory: inventory,
		direct:    make(map[uciKey][]int),
		byUCI:     make(map[key][]int),
		folders:   make(map[monthKey][]int),
		anyMonth:  make(map[string]bool),
	}
	for i := range inventory {
		m.index(i)
	}
	return m
}

// AddLines appends consumer lines discovered by expanding a folder and
// indexes them for subsequent lookups.
func (m *Matcher) AddLines(lines []model.InventoryItem) {
	for _, line := range lines {
		m.inventory = append(m.inventory, line)
		m.index(len(m.inventory) - 1)
	}
}

func (m *Matcher) index(i int) {
	it := m.inventory[i]
	svc := strings.TrimSpace(it.SvcCode)
	month := model.NormalizeMonth(it.SvcMonth)
	m.anyMonth[svc] = true
	if it.HasUCI {
		uci := strings.TrimSpace(it.UCI)
		uk := uciKey{uci: uci, month: month}
		m.direct[uk] = append(m.direct[uk], i)
		k := key{svc: svc, month: month, uci: uci}
		m.byUCI[k] = append(m.byUCI[k], i)
	} else {
		mk := monthKey{svc: svc, month: month}
		m.folders[mk] = append(m.folders[mk], i)
	}
}

// Match resolves one record. Precedence is fixed: an exact (uci, month)
// hit wins regardless of service code, then a (svc, month, uci) hit, then
// a folder for the record's service month is offered for expansion;
// otherwise the record is skipped with a reason naming what was absent.
func (m *Matcher) Match(rec model.BillingRecord) model.MatchOutcome {
	svc := strings.TrimSpace(rec.SvcCode)
	month := model.NormalizeMonth(rec.SvcMonthYear)
	uci := strings.TrimSpace(rec.UCI)

	if idxs, ok := m.direct[uciKey{uci: uci, month: month}]; ok && len(idxs) > 0 {
		it := m.inventory[idxs[0]]
		return model.MatchOutcome{
			Record:    rec,
			Item:      &it,
			ViaFolder: it.ConsumerLineID != "",
		}
	}

	if idxs, ok := m.byUCI[key{svc: svc, month: month, uci: uci}]; ok && len(idxs) > 0 {
		it := m.inventory[idxs[0]]
		return model.MatchOutcome{
			Record:    rec,
			Item:      &it,
			ViaFolder: it.ConsumerLineID != "",
		}
	}

	if idxs, ok := m.folders[monthKey{svc: svc, month: month}]; ok && len(idxs) > 0 {
		it := m.inventory[idxs[0]]
		return model.MatchOutcome{Record: rec, Item: &it, ViaFolder: true}
	}

	if !m.hasSvcMonth(svc, month) {
		return model.MatchOutcome{
			Record:     rec,
			SkipReason: fmt.Sprintf("No invoice found for SVC %s, Month %s", svc, month),
		}
	}
	return model.MatchOutcome{
		Record:     rec,
		SkipReason: fmt.Sprintf("UCI %s not found in available invoices for SVC %s, Month %s", uci, svc, month),
	}
}

// hasSvcMonth reports whether any inventory item carries the service code
// and month, regardless of UCI.
func (m *Matcher) hasSvcMonth(svc, month string) bool {
	for k := range m.byUCI {
		if k.svc == svc && k.month == month {
			return true
		}
	}
	_, ok := m.folders[monthKey{svc: svc, month: month}]
	return ok
}

// MatchAll resolves every record, preserving input order. The output
// always has one outcome per record.
func (m *Matcher) MatchAll(records []model.BillingRecord) []model.MatchOutcome {
	out := make([]model.MatchOutcome, 0, len(records))
	matched, skipped := 0, 0
	for _, rec := range records {
		o := m.Match(rec)
		if o.Matched() {
			matched++
		} else {
			skipped++
		}
		out = append(out, o)
	}
	zap.L().Info("records matched",
		zap.Int("matched", matched),
		zap.Int("skipped", skipped))
	return out
}

// Folders returns the multi-consumer folders relevant to any of the given
// records, deduplicated by invoice id. The runner expands these before
// the final matching pass.
func (m *Matcher) Folders(records []model.BillingRecord) []model.InventoryItem {
	seen := make(map[string]bool)
	var out []model.InventoryItem
	for _, rec := range records {
		mk := monthKey{
			svc:   strings.TrimSpace(rec.SvcCode),
			month: model.NormalizeMonth(rec.SvcMonthYear),
		}
		for _, i := range m.folders[mk] {
			it := m.inventory[i]
			if seen[it.InvoiceID] {
				continue
			}
			seen[it.InvoiceID] = true
			out = append(out, it)
		}
	}
	return out
}
