package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JSON:API resource types returned by Commerce Layer
const (
	ResourceTypeSKUs       = "skus"
	ResourceTypePrices     = "prices"
	ResourceTypeStockItems = "stock_items"
)

// Document is a JSON:API top-level document
type Document struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included,omitempty"`
	Errors   []APIError `json:"errors,omitempty"`
}

// Resource is a JSON:API resource object. Attributes stay raw until the
// caller knows which shape to decode them into.
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// ResourceIdentifier is the (type, id) linkage of a relationship
type ResourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Relationship holds relationship linkage. To-one linkage is normalized to a
// single-element slice and null linkage to an empty one.
type Relationship struct {
	Data []ResourceIdentifier `json:"data"`
}

func (r *Relationship) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	trimmed := bytes.TrimSpace(raw.Data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		r.Data = nil
	case trimmed[0] == '[':
		return json.Unmarshal(trimmed, &r.Data)
	default:
		var single ResourceIdentifier
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		r.Data = []ResourceIdentifier{single}
	}
	return nil
}

// Related returns the linkage of the named relationship, nil when absent
func (r Resource) Related(name string) []ResourceIdentifier {
	if r.Relationships == nil {
		return nil
	}
	return r.Relationships[name].Data
}

// DecodeAttributes unmarshals the resource attributes into target.
// Missing or null attributes leave target untouched.
func (r Resource) DecodeAttributes(target interface{}) error {
	trimmed := bytes.TrimSpace(r.Attributes)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("decode %s/%s attributes: %w", r.Type, r.ID, err)
	}
	return nil
}

// SKUAttributes are the SKU fields the storefront reads
type SKUAttributes struct {
	Code        string                 `json:"code"`
	Name        string                 `json:"name"`
	Description *string                `json:"description"`
	ImageURL    *string                `json:"image_url"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// PriceAttributes are the price fields the storefront reads
type PriceAttributes struct {
	AmountCents     int64   `json:"amount_cents"`
	AmountFloat     float64 `json:"amount_float"`
	FormattedAmount string  `json:"formatted_amount"`
	CurrencyCode    string  `json:"currency_code"`
}

type StockItemAttributes struct {
	Quantity int `json:"quantity"`
}

// APIError is a JSON:API error object
type APIError struct {
	Title  string          `json:"title,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Code   string          `json:"code,omitempty"`
	Status string          `json:"status,omitempty"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// ErrorDetails joins the detail of every error, falling back to titles
func ErrorDetails(errs []APIError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		switch {
		case e.Detail != "":
			parts = append(parts, e.Detail)
		case e.Title != "":
			parts = append(parts, e.Title)
		}
	}
	return strings.Join(parts, "; ")
}

// ResourceKey identifies an included resource
type ResourceKey struct {
	Type string
	ID   string
}

// IncludedIndex resolves relationship linkage against side-loaded resources
type IncludedIndex map[ResourceKey]Resource

// NewIncludedIndex builds a (type, id) lookup over the included resources
func NewIncludedIndex(included []Resource) IncludedIndex {
	index := make(IncludedIndex, len(included))
	for _, resource := range included {
		index[ResourceKey{Type: resource.Type, ID: resource.ID}] = resource
	}
	return index
}

// Lookup returns the included resource of the given type and id
func (idx IncludedIndex) Lookup(resourceType, id string) (Resource, bool) {
	resource, ok := idx[ResourceKey{Type: resourceType, ID: id}]
	return resource, ok
}
