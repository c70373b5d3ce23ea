package inventory

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// maxConsumerLine is the sanity ceiling for a consumer line number. Cells
// above it are invoice ids or units, not line numbers.
const maxConsumerLine = 100

var letterPattern = regexp.MustCompile(`[A-Za-z]`)

// Expander opens multi-consumer invoice folders and extracts their
// per-consumer lines. Expansions are cached by invoice id so a folder
// shared by several records is opened once per run.
type Expander struct {
	// ScrollSettle is the pause after each scroll step inside the
	// folder's consumer table.
	ScrollSettle time.Duration

	cache map[string][]model.InventoryItem
}

// NewExpander returns an Expander with production timing.
func NewExpander() *Expander {
	return &Expander{
		ScrollSettle: time.Second,
		cache:        make(map[string][]model.InventoryItem),
	}
}

// Cached returns the prior expansion of the folder, if any.
func (e *Expander) Cached(invoiceID string) ([]model.InventoryItem, bool) {
	lines, ok := e.cache[invoiceID]
	return lines, ok
}

// Reset drops all cached expansions. Call between providers; line
// contents are provider-scoped.
func (e *Expander) Reset() {
	e.cache = make(map[string][]model.InventoryItem)
}

// Expand opens the given folder invoice and returns its consumer lines.
// The caller is responsible for navigating back to the invoice grid
// afterwards; Expand leaves the page inside the folder view.
func (e *Expander) Expand(ctx context.Context, page driver.Page, folder model.InventoryItem) ([]model.InventoryItem, error) {
	if lines, ok := e.cache[folder.InvoiceID]; ok {
		return lines, nil
	}

	err := page.ClickRowLink(ctx, func(cells []string) bool {
		for _, c := range cells {
			if strings.TrimSpace(c) == folder.InvoiceID {
				return true
			}
		}
		return false
	}, "EDIT")
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: open folder %s", folder.InvoiceID)
	}
	if err := page.WaitSettle(ctx); err != nil {
		return nil, eris.Wrapf(err, "inventory: settle folder %s", folder.InvoiceID)
	}

	seen := make(map[string]bool)
	var lines []model.InventoryItem

	collect := func() error {
		rows, err := page.TableRows(ctx)
		if err != nil {
			return eris.Wrapf(err, "inventory: read folder %s rows", folder.InvoiceID)
		}
		for _, cells := range rows {
			line, ok := parseConsumerLine(cells, folder)
			if !ok || seen[line.ConsumerLineID] {
				continue
			}
			seen[line.ConsumerLineID] = true
			lines = append(lines, line)
		}
		return nil
	}

	if err := collect(); err != nil {
		return nil, err
	}

	// The consumer table inside a folder can be virtualized too.
	for step := 0; step < maxScrollSteps; step++ {
		state, err := page.ScrollGrid(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "inventory: scroll folder %s", folder.InvoiceID)
		}
		if !state.Moved {
			break
		}
		if e.ScrollSettle > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.ScrollSettle):
			}
		}
		if err := collect(); err != nil {
			return nil, err
		}
		if state.AtBottom {
			break
		}
	}

	zap.L().Info("folder expanded",
		zap.String("invoice", folder.InvoiceID),
		zap.Int("consumers", len(lines)))

	e.cache[folder.InvoiceID] = lines
	return lines, nil
}

// parseConsumerLine validates and converts a folder table row into a
// consumer line. A valid row starts with a small line number, carries a
// numeric UCI, and names a consumer with at least one letter; anything
// else is grid chrome or a summary row.
func parseConsumerLine(cells []string, folder model.InventoryItem) (model.InventoryItem, bool) {
	if len(cells) < 3 {
		return model.InventoryItem{}, false
	}

	lineIdx := -1
	var lineNum int
	for i := 0; i < len(cells) && i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(cells[i]))
		if err == nil && n > 0 && n < maxConsumerLine {
			lineIdx = i
			lineNum = n
			break
		}
	}
	if lineIdx < 0 || lineIdx+2 >= len(cells) {
		return model.InventoryItem{}, false
	}

	uci := strings.TrimSpace(cellAt(cells, lineIdx+1))
	name := strings.TrimSpace(cellAt(cells, lineIdx+2))
	if !numericPattern.MatchString(uci) {
		return model.InventoryItem{}, false
	}
	if !letterPattern.MatchString(name) {
		return model.InventoryItem{}, false
	}

	line := model.InventoryItem{
		InvoiceID:      folder.InvoiceID,
		ConsumerLineID: folder.InvoiceID + ":" + strconv.Itoa(lineNum),
		SvcCode:        folder.SvcCode,
		SvcSubcode:     strings.TrimSpace(cellAt(cells, lineIdx+3)),
		SvcMonth:       folder.SvcMonth,
		UCI:            uci,
		ConsumerName:   name,
		HasUCI:         true,
		AuthNumber:     strings.TrimSpace(cellAt(cells, lineIdx+4)),
		ProviderSPN:    folder.ProviderSPN,
		ProviderName:   folder.ProviderName,
	}
	return line, true
}
