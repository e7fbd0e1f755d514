package extraction

import (
	"fmt"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// systemInstruction primes the model for maximum item recall and strict
// allergen detection.
const systemInstruction = "You are an expert menu digitizer. Your goal is 100% recall of items. Be strict about allergen detection."

// handwritingInstructions extends the prompt when the menu is brush script,
// calligraphy or otherwise handwritten.
const handwritingInstructions = `
*** HANDWRITING & CALLIGRAPHY MODE ACTIVATED ***
1. The image contains ARTISTIC FONTS, BRUSH CALLIGRAPHY (Shodo), or HANDWRITTEN text.
2. Text might be arranged VERTICALLY (Tategaki). Read columns from right to left.
3. Contextual Inference: If a character is messy or ambiguous, infer the dish name based on common Izakaya/Street Food menu items.
4. Be permissive: Even if the ink is blurry, try to extract the item.
`

// buildPrompt assembles the extraction instruction for a batch of
// imageCount menu photos translated into targetLang.
func buildPrompt(imageCount int, targetLang menu.TargetLanguage, handwriting bool) string {
	extra := ""
	if handwriting {
		extra = handwritingInstructions
	}

	return fmt.Sprintf(`Analyze these menu images (Total: %d images).
%s
CRITICAL OBJECTIVE: EXTRACT EVERY SINGLE MENU ITEM VISIBLE.
1. STRICT OCR & ROBUSTNESS: Extract text EXACTLY as seen. If price is missing, set to 0.
2. DUAL PRICING / VARIANTS: Handle sizes/add-ons as options.
3. OUTPUT FORMAT: Group by category. Translate to %s. Detect currency. Estimate exchange rate to %s.
4. DIETARY & ALLERGY: Detect allergens (Beef, Pork, Peanuts, etc).
Return pure JSON adhering to the schema.`,
		imageCount, extra, targetLang, targetLang.TargetCurrency())
}
