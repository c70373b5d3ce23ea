package fastpath

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// Portal endpoint paths, relative to the regional base URL.
const (
	pathProviders      = "/grid/providers.json"
	pathSelectProvider = "/provider/select"
	pathInvoices       = "/grid/invoices.json"
	pathInvoiceDetail  = "/grid/invoiceDetail.json"
	pathOpenInvoice    = "/invoice/open"
	pathCalendar       = "/invoice/daysAttend"
)

type providerRow struct {
	SPN  string `json:"spn"`
	Name string `json:"name"`
}

type invoiceRow struct {
	InvoiceID    string  `json:"invoiceId"`
	InternalID   string  `json:"internalId"`
	SvcCode      string  `json:"svcCode"`
	SvcMonth     string  `json:"svcMonth"`
	UCI          string  `json:"uci"`
	ConsumerName string  `json:"consumerName"`
	AuthNumber   string  `json:"authNumber"`
	AuthUnits    float64 `json:"authUnits"`
}

type detailRow struct {
	LineID       string `json:"lineId"`
	LineNo       int    `json:"lineNo"`
	UCI          string `json:"uci"`
	ConsumerName string `json:"consumerName"`
	SvcSubcode   string `json:"svcSubcode"`
	AuthNumber   string `json:"authNumber"`
}

func (c *httpClient) ListProviders(ctx context.Context) ([]Provider, error) {
	body, err := c.get(ctx, pathProviders, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: list providers")
	}
	rows, err := decodeGrid[providerRow](body)
	if err != nil {
		return nil, err
	}
	out := make([]Provider, 0, len(rows))
	for _, r := range rows {
		out = append(out, Provider{SPN: strings.ToUpper(strings.TrimSpace(r.SPN)), Name: strings.TrimSpace(r.Name)})
	}
	return out, nil
}

func (c *httpClient) SelectProvider(ctx context.Context, spn string) error {
	_, err := c.postForm(ctx, pathSelectProvider, url.Values{"spn": {spn}})
	if err != nil {
		return eris.Wrapf(err, "fastpath: select provider %s", spn)
	}
	return nil
}

func (c *httpClient) InvoiceGrid(ctx context.Context) ([]model.InventoryItem, error) {
	body, err := c.get(ctx, pathInvoices, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: invoice grid")
	}
	rows, err := decodeGrid[invoiceRow](body)
	if err != nil {
		return nil, err
	}

	items := make([]model.InventoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, model.InventoryItem{
			InvoiceID:         strings.TrimSpace(r.InvoiceID),
			InvoiceInternalID: strings.TrimSpace(r.InternalID),
			SvcCode:           strings.TrimSpace(r.SvcCode),
			SvcMonth:          strings.TrimSpace(r.SvcMonth),
			UCI:               strings.TrimSpace(r.UCI),
			ConsumerName:      strings.TrimSpace(r.ConsumerName),
			HasUCI:            strings.TrimSpace(r.UCI) != "",
			AuthNumber:        strings.TrimSpace(r.AuthNumber),
			AuthUnits:         r.AuthUnits,
		})
	}
	return items, nil
}

func (c *httpClient) OpenInvoice(ctx context.Context, internalID string) error {
	_, err := c.postForm(ctx, pathOpenInvoice, url.Values{"id": {internalID}})
	if err != nil {
		return eris.Wrapf(err, "fastpath: open invoice %s", internalID)
	}
	return nil
}

func (c *httpClient) InvoiceDetail(ctx context.Context, internalID string) ([]model.InventoryItem, error) {
	body, err := c.get(ctx, pathInvoiceDetail, url.Values{"id": {internalID}})
	if err != nil {
		return nil, eris.Wrapf(err, "fastpath: invoice detail %s", internalID)
	}
	rows, err := decodeGrid[detailRow](body)
	if err != nil {
		return nil, err
	}

	items := make([]model.InventoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, model.InventoryItem{
			InvoiceInternalID: internalID,
			ConsumerLineID:    strings.TrimSpace(r.LineID),
			UCI:               strings.TrimSpace(r.UCI),
			ConsumerName:      strings.TrimSpace(r.ConsumerName),
			SvcSubcode:        strings.TrimSpace(r.SvcSubcode),
			AuthNumber:        strings.TrimSpace(r.AuthNumber),
			HasUCI:            strings.TrimSpace(r.UCI) != "",
		})
	}
	return items, nil
}

// ScrapeInventory builds the full inventory over the grid endpoints:
// invoice grid first, then one detail call per multi-consumer folder.
// Folder fields (invoice id, service code, month) are stamped onto every
// expanded consumer line so the result matches the page-driven scraper.
func ScrapeInventory(ctx context.Context, c Client) ([]model.InventoryItem, error) {
	invoices, err := c.InvoiceGrid(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.InventoryItem, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, inv)
		if !inv.IsFolder() {
			continue
		}
		lines, err := c.InvoiceDetail(ctx, inv.InvoiceInternalID)
		if err != nil {
			// A detail failure hides one folder's consumers, not the
			// whole inventory; the matcher will skip those records.
			zap.L().Warn("invoice detail failed",
				zap.String("invoice", inv.InvoiceID),
				zap.Error(err))
			continue
		}
		for _, line := range lines {
			line.InvoiceID = inv.InvoiceID
			line.SvcCode = inv.SvcCode
			line.SvcMonth = inv.SvcMonth
			line.ProviderSPN = inv.ProviderSPN
			line.ProviderName = inv.ProviderName
			out = append(out, line)
		}
	}

	zap.L().Info("fastpath inventory complete", zap.Int("items", len(out)))
	return out, nil
}
