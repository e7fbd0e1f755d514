// Package menu defines the domain model for scanned menus, carts and
// finished-order history records.
package menu

// TargetLanguage is a display language the user can translate a menu into.
// The values are the language's own name, which is what the extraction
// prompt embeds verbatim.
type TargetLanguage string

const (
	ChineseTW  TargetLanguage = "繁體中文"
	English    TargetLanguage = "English"
	Korean     TargetLanguage = "한국어"
	French     TargetLanguage = "Français"
	Spanish    TargetLanguage = "Español"
	Thai       TargetLanguage = "ไทย"
	Filipino   TargetLanguage = "Tagalog"
	Vietnamese TargetLanguage = "Tiếng Việt"
	Japanese   TargetLanguage = "日本語"
)

// TargetCurrency returns the currency prices are converted into for a
// given display language.
func (l TargetLanguage) TargetCurrency() string {
	switch l {
	case ChineseTW:
		return "TWD"
	case English:
		return "USD"
	case Korean:
		return "KRW"
	case French, Spanish:
		return "EUR"
	case Thai:
		return "THB"
	case Filipino:
		return "PHP"
	case Vietnamese:
		return "VND"
	case Japanese:
		return "JPY"
	default:
		return "TWD"
	}
}

// MenuOption is a priced variant (size or add-on) attached to an item.
// Options have no identity of their own.
type MenuOption struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// MenuItem is a single extracted dish. The ID is assigned at ingestion and
// is stable for the session only; it is never reused across sessions.
type MenuItem struct {
	ID               string       `json:"id"`
	OriginalName     string       `json:"originalName"`
	TranslatedName   string       `json:"translatedName"`
	Price            float64      `json:"price"`
	Category         string       `json:"category,omitempty"`
	Options          []MenuOption `json:"options,omitempty"`
	ShortDescription string       `json:"shortDescription,omitempty"`
	AllergyWarning   bool         `json:"allergy_warning,omitempty"`
	Allergens        []string     `json:"allergens,omitempty"`
	DietaryTags      []string     `json:"dietary_tags,omitempty"`
}

// TokenUsage reports the extraction service's token accounting for one call.
type TokenUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// MenuData is one extraction result. ExchangeRate expresses
// "1 unit of OriginalCurrency = ExchangeRate units of TargetCurrency".
type MenuData struct {
	Items            []MenuItem  `json:"items"`
	OriginalCurrency string      `json:"originalCurrency"`
	TargetCurrency   string      `json:"targetCurrency"`
	ExchangeRate     float64     `json:"exchangeRate"`
	DetectedLanguage string      `json:"detectedLanguage"`
	RestaurantName   string      `json:"restaurantName,omitempty"`
	UsageMetadata    *TokenUsage `json:"usageMetadata,omitempty"`
}

// CartItem pairs a value-copied menu item with a chosen quantity.
// Quantity is always >= 1; zero-quantity entries are removed from the cart
// rather than stored.
type CartItem struct {
	Item     MenuItem `json:"item"`
	Quantity int      `json:"quantity"`
}

// Cart maps MenuItem.ID to the chosen cart entry.
type Cart map[string]CartItem

// Total returns the cart total in the menu's original currency.
func (c Cart) Total() float64 {
	var sum float64
	for _, ci := range c {
		sum += ci.Item.Price * float64(ci.Quantity)
	}
	return sum
}

// GeoLocation is an optional coordinate pair captured once per extraction
// attempt. It is provenance metadata only and never required for
// correctness.
type GeoLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HistoryRecord is a frozen snapshot of a finished order. Immutable once
// created except for whole-record deletion.
type HistoryRecord struct {
	ID                 string       `json:"id"`
	Timestamp          int64        `json:"timestamp"`
	Items              []CartItem   `json:"items"`
	TotalOriginalPrice float64      `json:"totalOriginalPrice"`
	Currency           string       `json:"currency"`
	RestaurantName     string       `json:"restaurantName,omitempty"`
	PaidBy             string       `json:"paidBy,omitempty"`
	Location           *GeoLocation `json:"location,omitempty"`
	TaxRate            float64      `json:"taxRate,omitempty"`
	ServiceRate        float64      `json:"serviceRate,omitempty"`
}
