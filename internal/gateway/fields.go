package gateway

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate keys per logical field, in priority order. The gateway has
// shipped several response shapes over time.
var (
	invoiceIDKeys = []string{"invoice_id", "invoiceId", "id", "invoice.id", "data.invoice_id"}
	qrImageKeys   = []string{"qr_image", "qrImage", "qr_image_base64", "qr.image", "data.qr_image"}
	qrTextKeys    = []string{"qr_text", "qrText", "qr_code", "qrCode", "qr.text", "data.qr_text"}
	shortURLKeys  = []string{"qPay_shortUrl", "qpay_shorturl", "short_url", "shortUrl", "data.short_url"}
	deepLinkKeys  = []string{"urls", "deeplinks", "deep_links", "links", "data.urls"}
	linkURLKeys   = []string{"link", "url", "href"}
)

// DeepLink is one bank or wallet app entry the payer can open.
type DeepLink struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
	Link        string `json:"link"`
}

// InvoiceFields is the typed view of an invoice create response.
type InvoiceFields struct {
	InvoiceID string
	QRImage   string
	QRText    string
	ShortURL  string
	DeepLinks []DeepLink
}

// ExtractInvoiceFields resolves each field from the first candidate key
// holding a non-empty value.
func ExtractInvoiceFields(raw []byte) InvoiceFields {
	root := gjson.ParseBytes(raw)
	return InvoiceFields{
		InvoiceID: firstString(root, invoiceIDKeys),
		QRImage:   firstString(root, qrImageKeys),
		QRText:    firstString(root, qrTextKeys),
		ShortURL:  firstString(root, shortURLKeys),
		DeepLinks: firstLinks(root),
	}
}

func firstString(root gjson.Result, keys []string) string {
	for _, key := range keys {
		value := root.Get(key)
		if !value.Exists() || value.IsObject() || value.IsArray() {
			continue
		}
		if s := strings.TrimSpace(value.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstLinks(root gjson.Result) []DeepLink {
	for _, key := range deepLinkKeys {
		value := root.Get(key)
		if !value.IsArray() {
			continue
		}
		links := make([]DeepLink, 0, len(value.Array()))
		for _, item := range value.Array() {
			link := DeepLink{
				Name:        strings.TrimSpace(item.Get("name").String()),
				Description: strings.TrimSpace(item.Get("description").String()),
				Logo:        strings.TrimSpace(item.Get("logo").String()),
				Link:        firstString(item, linkURLKeys),
			}
			if item.Type == gjson.String {
				link.Link = strings.TrimSpace(item.String())
			}
			if link.Link == "" {
				continue
			}
			links = append(links, link)
		}
		if len(links) > 0 {
			return links
		}
	}
	return nil
}
