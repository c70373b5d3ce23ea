package model

import "strings"

// InventoryItem is one invoice or consumer line visible to the selected
// provider. Rebuilt from the portal every run, never persisted.
//
// An empty UCI marks a multi-consumer folder: one invoice id covering many
// consumer lines, which must be expanded before individual consumers are
// reachable. InvoiceID is therefore not a unique key; ConsumerLineID is
// unique per expanded line.
type InventoryItem struct {
	InvoiceID         string // portal-visible invoice number
	InvoiceInternalID string // opaque row key the portal uses for navigation
	ConsumerLineID    string
	SvcCode           string
	SvcSubcode        string
	SvcMonth          string
	UCI               string
	ConsumerName      string
	HasUCI            bool
	AuthNumber        string
	AuthUnits         float64

	// Set by the all-providers batch scan to tag which identity each
	// item was scraped under.
	ProviderSPN  string
	ProviderName string
}

// IsFolder reports whether this item is a multi-consumer folder requiring
// expansion.
func (i InventoryItem) IsFolder() bool {
	return !i.HasUCI
}

// LastName returns the surname portion of the portal's "Last, First"
// consumer name.
func (i InventoryItem) LastName() string {
	last, _ := splitName(i.ConsumerName)
	return last
}

// FirstName returns the given-name portion of the portal's "Last, First"
// consumer name.
func (i InventoryItem) FirstName() string {
	_, first := splitName(i.ConsumerName)
	return first
}

func splitName(name string) (last, first string) {
	before, after, found := strings.Cut(name, ",")
	if !found {
		return strings.TrimSpace(name), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}
