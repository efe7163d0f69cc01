package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationship_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []ResourceIdentifier
	}{
		{
			name: "array linkage",
			body: `{"data":[{"type":"stock_items","id":"s1"},{"type":"stock_items","id":"s2"}]}`,
			want: []ResourceIdentifier{{Type: "stock_items", ID: "s1"}, {Type: "stock_items", ID: "s2"}},
		},
		{
			name: "single object linkage",
			body: `{"data":{"type":"prices","id":"p1"}}`,
			want: []ResourceIdentifier{{Type: "prices", ID: "p1"}},
		},
		{
			name: "null linkage",
			body: `{"data":null}`,
			want: nil,
		},
		{
			name: "links only",
			body: `{"links":{"self":"https://example.com"}}`,
			want: nil,
		},
		{
			name: "empty array",
			body: `{"data":[]}`,
			want: []ResourceIdentifier{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rel Relationship
			require.NoError(t, json.Unmarshal([]byte(tt.body), &rel))
			assert.Equal(t, tt.want, rel.Data)
		})
	}
}

func TestRelationship_UnmarshalJSON_Invalid(t *testing.T) {
	var rel Relationship
	err := json.Unmarshal([]byte(`{"data":"p1"}`), &rel)
	assert.Error(t, err)
}

func TestDocument_DecodeAndJoin(t *testing.T) {
	// Arrange
	body := `{
		"data": [{
			"id": "sku1",
			"type": "skus",
			"attributes": {"code": "TSHIRT-M", "name": "T-Shirt", "metadata": {"color": "red"}},
			"relationships": {
				"prices": {"data": [{"type": "prices", "id": "p1"}]},
				"stock_items": {"data": {"type": "stock_items", "id": "s1"}}
			}
		}],
		"included": [
			{"id": "p1", "type": "prices", "attributes": {"amount_cents": 1999, "amount_float": 19.99, "formatted_amount": "£19.99", "currency_code": "GBP"}},
			{"id": "s1", "type": "stock_items", "attributes": {"quantity": 4}},
			{"id": "p1", "type": "stock_items", "attributes": {"quantity": 99}}
		]
	}`

	// Act
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	index := NewIncludedIndex(doc.Included)

	// Assert
	require.Len(t, doc.Data, 1)
	sku := doc.Data[0]

	var attrs SKUAttributes
	require.NoError(t, sku.DecodeAttributes(&attrs))
	assert.Equal(t, "TSHIRT-M", attrs.Code)
	assert.Equal(t, "red", attrs.Metadata["color"])
	assert.Nil(t, attrs.Description)

	priceRefs := sku.Related(ResourceTypePrices)
	require.Len(t, priceRefs, 1)
	price, ok := index.Lookup(ResourceTypePrices, priceRefs[0].ID)
	require.True(t, ok)

	var priceAttrs PriceAttributes
	require.NoError(t, price.DecodeAttributes(&priceAttrs))
	assert.Equal(t, int64(1999), priceAttrs.AmountCents)
	assert.Equal(t, "GBP", priceAttrs.CurrencyCode)

	// Same id under another type is a different resource
	stock, ok := index.Lookup(ResourceTypeStockItems, "p1")
	require.True(t, ok)
	var stockAttrs StockItemAttributes
	require.NoError(t, stock.DecodeAttributes(&stockAttrs))
	assert.Equal(t, 99, stockAttrs.Quantity)

	_, ok = index.Lookup(ResourceTypePrices, "missing")
	assert.False(t, ok)
}

func TestResource_Related_Missing(t *testing.T) {
	var resource Resource
	assert.Nil(t, resource.Related(ResourceTypePrices))

	resource.Relationships = map[string]Relationship{}
	assert.Nil(t, resource.Related(ResourceTypeStockItems))
}

func TestResource_DecodeAttributes(t *testing.T) {
	t.Run("null attributes leave target untouched", func(t *testing.T) {
		resource := Resource{ID: "sku1", Type: ResourceTypeSKUs, Attributes: json.RawMessage(`null`)}
		attrs := SKUAttributes{Code: "KEEP"}
		require.NoError(t, resource.DecodeAttributes(&attrs))
		assert.Equal(t, "KEEP", attrs.Code)
	})

	t.Run("wrong shape names the resource", func(t *testing.T) {
		resource := Resource{ID: "p1", Type: ResourceTypePrices, Attributes: json.RawMessage(`{"amount_cents":"free"}`)}
		var attrs PriceAttributes
		err := resource.DecodeAttributes(&attrs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prices/p1")
	})
}

func TestErrorDetails(t *testing.T) {
	errs := []APIError{
		{Title: "Invalid filter", Detail: "sku_list_id_eq is not a valid filter"},
		{Title: "Unauthorized"},
		{Code: "X"},
	}

	assert.Equal(t, "sku_list_id_eq is not a valid filter; Unauthorized", ErrorDetails(errs))
	assert.Equal(t, "", ErrorDetails(nil))
}

func TestParseMarket(t *testing.T) {
	tests := []struct {
		input   string
		want    Market
		wantErr bool
	}{
		{input: "UK", want: MarketUK},
		{input: "eu", want: MarketEU},
		{input: " uk ", want: MarketUK},
		{input: "US", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			market, err := ParseMarket(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, market)
		})
	}
}

func TestProduct_JSONShape(t *testing.T) {
	// Category is always present, null when no filter was requested
	product := Product{ID: "sku1", Code: "C1", Images: []ProductImage{}, Attributes: []ProductAttribute{}}

	encoded, err := json.Marshal(product)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Contains(t, decoded, "category")
	assert.Nil(t, decoded["category"])
	assert.NotContains(t, decoded, "price")
	assert.NotContains(t, decoded, "image_url")
	assert.Equal(t, []interface{}{}, decoded["images"])
}
