package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"storefront-commerce-api/internal/models"
)

// metadata keys the listing treats as catalog facets rather than product attributes
var facetMetadataKeys = map[string]bool{
	"category": true,
	"brand":    true,
}

// priceMode selects how amount_cents is produced
type priceMode int

const (
	// upstream amount_cents copied verbatim
	priceFromCents priceMode = iota
	// amount_cents recomputed as round(amount_float * 100)
	priceFromFloat
)

// skuRecord is a primary SKU resource with its relationships resolved
type skuRecord struct {
	ID         string
	Attributes models.SKUAttributes
	Price      *models.Price
	Quantity   int
}

// resolveSKU decodes a SKU resource and joins its first price and all of its
// stock items against the included index
func resolveSKU(item models.Resource, included models.IncludedIndex, mode priceMode) (*skuRecord, error) {
	record := &skuRecord{ID: item.ID}
	if err := item.DecodeAttributes(&record.Attributes); err != nil {
		return nil, err
	}

	price, err := resolvePrice(item, included, mode)
	if err != nil {
		return nil, err
	}
	record.Price = price

	quantity, err := totalStockQuantity(item, included)
	if err != nil {
		return nil, err
	}
	record.Quantity = quantity

	return record, nil
}

// resolvePrice returns the first linked price, nil when there is none
func resolvePrice(item models.Resource, included models.IncludedIndex, mode priceMode) (*models.Price, error) {
	refs := item.Related(models.ResourceTypePrices)
	if len(refs) == 0 {
		slog.Debug("No price relationship", "sku_id", item.ID)
		return nil, nil
	}

	priceResource, ok := included.Lookup(models.ResourceTypePrices, refs[0].ID)
	if !ok {
		slog.Warn("Price relationship without included price", "sku_id", item.ID, "price_id", refs[0].ID)
		return nil, nil
	}

	var attrs models.PriceAttributes
	if err := priceResource.DecodeAttributes(&attrs); err != nil {
		return nil, err
	}

	price := &models.Price{
		AmountCents:  attrs.AmountCents,
		AmountFloat:  attrs.AmountFloat,
		Formatted:    attrs.FormattedAmount,
		CurrencyCode: attrs.CurrencyCode,
	}
	if mode == priceFromFloat {
		price.AmountCents = centsFromFloat(attrs.AmountFloat)
	}
	return price, nil
}

// centsFromFloat computes round(amount * 100) on the decimal representation
// of amount, so 0.29 yields 29 rather than 28
func centsFromFloat(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// totalStockQuantity sums the quantity of every linked stock item
func totalStockQuantity(item models.Resource, included models.IncludedIndex) (int, error) {
	total := 0
	for _, ref := range item.Related(models.ResourceTypeStockItems) {
		stockItem, ok := included.Lookup(models.ResourceTypeStockItems, ref.ID)
		if !ok {
			continue
		}
		var attrs models.StockItemAttributes
		if err := stockItem.DecodeAttributes(&attrs); err != nil {
			return 0, err
		}
		total += attrs.Quantity
	}
	return total, nil
}

// metadataAttributes converts non-null metadata entries into name/value pairs
// sorted by name, skipping facet keys when excludeFacets is set
func metadataAttributes(metadata map[string]interface{}, excludeFacets bool) ([]models.ProductAttribute, error) {
	attrs := make([]models.ProductAttribute, 0, len(metadata))
	for key, value := range metadata {
		if value == nil || (excludeFacets && facetMetadataKeys[key]) {
			continue
		}
		text, err := stringifyMetadata(value)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", key, err)
		}
		attrs = append(attrs, models.ProductAttribute{Name: key, Value: text})
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name < attrs[j].Name
	})
	return attrs, nil
}

// stringifyMetadata keeps strings as they are and renders every other value as JSON
func stringifyMetadata(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// productMapping holds the per-caller differences of the product DTO
type productMapping struct {
	category      *string
	excludeFacets bool
}

// toProduct maps a primary SKU resource into the product DTO
func toProduct(item models.Resource, included models.IncludedIndex, mapping productMapping) (models.Product, error) {
	record, err := resolveSKU(item, included, priceFromCents)
	if err != nil {
		return models.Product{}, err
	}

	attributes, err := metadataAttributes(record.Attributes.Metadata, mapping.excludeFacets)
	if err != nil {
		return models.Product{}, fmt.Errorf("sku %s: %w", item.ID, err)
	}

	images := make([]models.ProductImage, 0, 1)
	imageURL := nonEmpty(record.Attributes.ImageURL)
	if imageURL != nil {
		images = append(images, models.ProductImage{URL: *imageURL})
	}

	return models.Product{
		ID:          record.ID,
		Name:        record.Attributes.Name,
		Code:        record.Attributes.Code,
		Description: record.Attributes.Description,
		ImageURL:    imageURL,
		Price:       record.Price,
		Images:      images,
		Attributes:  attributes,
		Category:    mapping.category,
		Available:   record.Quantity > 0,
	}, nil
}

// toProducts maps every SKU of doc; a single failure aborts the whole mapping
func toProducts(doc *models.Document, mapping productMapping) ([]models.Product, error) {
	included := models.NewIncludedIndex(doc.Included)
	products := make([]models.Product, 0, len(doc.Data))
	for _, item := range doc.Data {
		if item.Type != models.ResourceTypeSKUs {
			continue
		}
		product, err := toProduct(item, included, mapping)
		if err != nil {
			return nil, mappingError(err)
		}
		products = append(products, product)
	}
	return products, nil
}

// toProductDetail maps a primary SKU resource into the detail DTO
func toProductDetail(item models.Resource, included models.IncludedIndex) (*models.ProductDetail, error) {
	record, err := resolveSKU(item, included, priceFromFloat)
	if err != nil {
		return nil, mappingError(err)
	}

	if record.ID == "" || record.Attributes.Code == "" {
		return nil, newError(KindMapping, "failed to retrieve essential SKU identifiers from Commerce Layer")
	}

	images := make([]models.ProductImage, 0, 1)
	if imageURL := nonEmpty(record.Attributes.ImageURL); imageURL != nil {
		alt := record.Attributes.Name
		if alt == "" {
			alt = "Product image"
		}
		images = append(images, models.ProductImage{URL: *imageURL, Alt: alt})
	}

	return &models.ProductDetail{
		ID:          record.ID,
		SKU:         record.Attributes.Code,
		Name:        record.Attributes.Name,
		Description: record.Attributes.Description,
		Price:       record.Price,
		Images:      images,
		Available:   record.Quantity > 0,
	}, nil
}

func mappingError(err error) *Error {
	return &Error{
		Kind:    KindMapping,
		Message: "unexpected Commerce Layer response shape",
		Detail:  err.Error(),
		Err:     err,
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
