package llm

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
)

const extractionPrompt = `Extract data from this GYO TRANSPORT & SERVICES invoice image.

If the image holds several invoices or records, return a JSON array with one object per record. A single record is still wrapped in an array.

SERVICE TYPES

Weight-based services (is_count: false):
- Memetik Tandan Sawit: KG weight and price per ton. Total = weight x price / 1000
- Pengangkutan / Sewa Lori: KG weight and price per ton. Total = weight x price / 1000

Count-based services (is_count: true):
- Memotong Pelepah Sawit: pohon count and price per pohon. Total = count x price
- Meracun: kebun count and price per kebun. Total = count x price
- Membaja: bungkus count and price per bungkus. Total = count x price
- Lain-lain: count is always 1, extract only the price per unit

LAIN-LAIN
- weight_kg: always 1
- price_per_ton: the price shown (if you see "10", the price is 10)
- total: equals price_per_ton

FIELDS
date (dd/mm/yyyy), invoice_no, customer_name, service_type, is_count, weight_kg, price_per_ton, total.
Use numbers for weight_kg, price_per_ton and total, without currency symbols or thousands separators.

EXAMPLE
[{"date": "14/12/2023", "invoice_no": "5351", "customer_name": "En MDAJI", "service_type": "Memetik Tandan Sawit", "is_count": false, "weight_kg": 3580, "price_per_ton": 93, "total": 333.34},
 {"date": "14/12/2023", "invoice_no": "5351", "customer_name": "En MDAJI", "service_type": "Lain-lain", "is_count": true, "weight_kg": 1, "price_per_ton": 10, "total": 10}]

Extract all records now and return only the JSON array.`

// arbiterPrompt renders the candidate-choice question
func arbiterPrompt(query string, price decimal.NullDecimal, candidates []models.MatchCandidate) string {
	var sb strings.Builder

	sb.WriteString("CUSTOMER MATCHING WITH PRICE VALIDATION\n\n")
	fmt.Fprintf(&sb, "Query: %q", query)
	if price.Valid {
		fmt.Fprintf(&sb, " with extracted price RM%s", price.Decimal.String())
	}
	sb.WriteString("\n\nCandidates:\n")

	for i, c := range candidates {
		status := "PRICE MISMATCH"
		if c.ExactPriceMatch {
			status = "EXACT PRICE"
		}
		fmt.Fprintf(&sb, "%d. %s | Name similarity: %.2f | %s: RM%s | Combined confidence: %.2f\n",
			i+1, c.CustomerName, c.SimilarityScore, status, c.CustomerPrice.String(), c.CombinedConfidence)
	}

	sb.WriteString(`
MATCHING RULES
1. Exact price match has the highest priority. Prefer EXACT PRICE candidates when any exist.
2. Among exact price matches choose the highest name similarity.
3. Choose a name-only candidate only if no exact price match exists and its name similarity is above 0.7.
4. If no candidate is a good match, answer NONE.

Answer with ONLY the exact customer name from the candidates, or NONE.`)

	return sb.String()
}
