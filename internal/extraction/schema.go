package extraction

// Schema is the structured-output schema sent with each extraction request.
// It mirrors the subset of the JSON-schema dialect the generation service
// accepts.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// menuSchema constrains the extraction result to the menu shape: items with
// exact original text, translated names, base prices and categories, plus
// top-level currency, exchange rate and detected language.
var menuSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"restaurantName": {
			Type:        "string",
			Description: "Name of the restaurant if visible on the menu.",
		},
		"originalCurrency": {
			Type:        "string",
			Description: "The currency code found on the menu (e.g., JPY, EUR, USD).",
		},
		"exchangeRate": {
			Type:        "number",
			Description: "Real-time exchange rate: 1 unit of Menu Currency = X units of Target Currency.",
		},
		"detectedLanguage": {
			Type:        "string",
			Description: "The primary language detected on the menu.",
		},
		"items": {
			Type: "array",
			Items: &Schema{
				Type: "object",
				Properties: map[string]*Schema{
					"originalName": {
						Type:        "string",
						Description: "EXACT text from image. Do not autocorrect.",
					},
					"translatedName": {Type: "string"},
					"price": {
						Type:        "number",
						Description: "Base price. If price is missing or illegible, return 0.",
					},
					"category": {Type: "string"},
					"options": {
						Type:        "array",
						Description: "Variants like sizes (Small/Large) or add-ons listed with the item.",
						Items: &Schema{
							Type: "object",
							Properties: map[string]*Schema{
								"name":  {Type: "string"},
								"price": {Type: "number"},
							},
						},
					},
					"shortDescription": {
						Type:        "string",
						Description: "Brief description (5-8 words).",
					},
					"allergy_warning": {
						Type:        "boolean",
						Description: "True if contains common allergens.",
					},
					"allergens": {
						Type:        "array",
						Items:       &Schema{Type: "string"},
						Description: "Detect if item definitely contains: Beef, Pork, Peanuts, Shrimp, Seafood, Coriander, Nuts, Soy, Eggs, Milk.",
					},
					"dietary_tags": {
						Type:        "array",
						Items:       &Schema{Type: "string"},
						Description: "Tags: Spicy, Vegan, Veg, Gluten-Free.",
					},
				},
				Required: []string{"originalName", "translatedName", "price", "category"},
			},
		},
	},
	Required: []string{"items", "originalCurrency", "exchangeRate", "detectedLanguage"},
}
