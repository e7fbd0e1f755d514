package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// menuPayload mirrors the schema the model must produce. Required fields are
// pointers so a missing field is distinguishable from a zero value.
type menuPayload struct {
	RestaurantName   string        `json:"restaurantName"`
	OriginalCurrency *string       `json:"originalCurrency"`
	ExchangeRate     *float64      `json:"exchangeRate"`
	DetectedLanguage *string       `json:"detectedLanguage"`
	Items            []itemPayload `json:"items"`
}

type itemPayload struct {
	OriginalName     *string           `json:"originalName"`
	TranslatedName   *string           `json:"translatedName"`
	Price            *float64          `json:"price"`
	Category         string            `json:"category"`
	Options          []menu.MenuOption `json:"options"`
	ShortDescription string            `json:"shortDescription"`
	AllergyWarning   bool              `json:"allergy_warning"`
	Allergens        []string          `json:"allergens"`
	DietaryTags      []string          `json:"dietary_tags"`
}

// buildMenuData validates the model's JSON output against the expected
// shape, assigns session identities and folds in the reconciled exchange
// rate. Validation failure is a ValidationError, never a silent coercion.
func (c *Client) buildMenuData(ctx context.Context, resp generateResponse, targetLang menu.TargetLanguage) (menu.MenuData, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return menu.MenuData{}, &ValidationError{Message: "empty response from extraction service"}
	}

	// Models occasionally wrap the JSON in markdown fences despite the
	// response MIME type.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload menuPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return menu.MenuData{}, &ValidationError{Message: fmt.Sprintf("parse: %v", err)}
	}
	if err := validatePayload(payload); err != nil {
		return menu.MenuData{}, err
	}

	items := make([]menu.MenuItem, 0, len(payload.Items))
	for i, it := range payload.Items {
		category := it.Category
		if category == "" {
			category = defaultCategory
		}
		items = append(items, menu.MenuItem{
			ID:               fmt.Sprintf("item-%d-%s", i, uuid.NewString()),
			OriginalName:     *it.OriginalName,
			TranslatedName:   *it.TranslatedName,
			Price:            *it.Price,
			Category:         category,
			Options:          it.Options,
			ShortDescription: it.ShortDescription,
			AllergyWarning:   it.AllergyWarning,
			Allergens:        it.Allergens,
			DietaryTags:      it.DietaryTags,
		})
	}

	originalCurrency := *payload.OriginalCurrency
	if originalCurrency == "" {
		originalCurrency = "???"
	}
	detectedLanguage := *payload.DetectedLanguage
	if detectedLanguage == "" {
		detectedLanguage = "Unknown"
	}

	// The model's estimate is only a fallback; an authoritative reconciled
	// rate always overrides it.
	exchangeRate := *payload.ExchangeRate
	if exchangeRate <= 0 {
		exchangeRate = 1
	}
	targetCurrency := targetLang.TargetCurrency()
	if c.rates != nil {
		if reconciled, err := c.rates.Reconcile(ctx, originalCurrency, targetCurrency); err == nil {
			exchangeRate = reconciled
		} else {
			c.logger.Warn("rate reconciliation failed, keeping model estimate",
				zap.String("source", originalCurrency),
				zap.String("target", targetCurrency),
				zap.Error(err))
		}
	}

	return menu.MenuData{
		Items:            items,
		OriginalCurrency: originalCurrency,
		TargetCurrency:   targetCurrency,
		ExchangeRate:     exchangeRate,
		DetectedLanguage: detectedLanguage,
		RestaurantName:   payload.RestaurantName,
		UsageMetadata:    resp.UsageMetadata,
	}, nil
}

// validatePayload enforces the mandatory fields of the extraction schema.
func validatePayload(p menuPayload) error {
	if p.Items == nil {
		return &ValidationError{Message: "missing items"}
	}
	if p.OriginalCurrency == nil {
		return &ValidationError{Message: "missing originalCurrency"}
	}
	if p.ExchangeRate == nil {
		return &ValidationError{Message: "missing exchangeRate"}
	}
	if p.DetectedLanguage == nil {
		return &ValidationError{Message: "missing detectedLanguage"}
	}

	for i, it := range p.Items {
		switch {
		case it.OriginalName == nil:
			return &ValidationError{Message: fmt.Sprintf("item %d: missing originalName", i)}
		case it.TranslatedName == nil:
			return &ValidationError{Message: fmt.Sprintf("item %d: missing translatedName", i)}
		case it.Price == nil:
			return &ValidationError{Message: fmt.Sprintf("item %d: missing price", i)}
		case *it.Price < 0:
			return &ValidationError{Message: fmt.Sprintf("item %d: negative price", i)}
		}
	}
	return nil
}
