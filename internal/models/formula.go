package models

import "strings"

// FormulaType is the billing formula recorded against a catalog customer
type FormulaType string

const (
	FormulaWeightPrice      FormulaType = "WEIGHT_PRICE"
	FormulaAdditional       FormulaType = "ADDITIONAL"
	FormulaBaja             FormulaType = "BAJA"
	FormulaJCB              FormulaType = "JCB"
	FormulaLainLain         FormulaType = "LAIN_LAIN"
	FormulaBayaranGredir    FormulaType = "BAYARAN_GREDIR"
	FormulaMembaja          FormulaType = "MEMBAJA"
	FormulaMemotongPelepah  FormulaType = "MEMOTONG_PELEPAH"
	FormulaMemotongPelepahT FormulaType = "MEMOTONG_PELEPAH_T"
	FormulaMeracun          FormulaType = "MERACUN"
	FormulaPayToGreder      FormulaType = "PAY_TO_GREDER"
	FormulaPengangkutanLori FormulaType = "PENGANGKUTAN_LORI"
	FormulaUpah             FormulaType = "UPAH"
)

// formulaLabels holds the label as written in the knowledge base
var formulaLabels = map[FormulaType]string{
	FormulaWeightPrice:      "Weight x Price per ton/1000kg",
	FormulaAdditional:       "Additional",
	FormulaBaja:             "Baja",
	FormulaJCB:              "JCB",
	FormulaLainLain:         "Lain Lain",
	FormulaBayaranGredir:    "Lain Lain (Bayaran Gredir)",
	FormulaMembaja:          "Membaja",
	FormulaMemotongPelepah:  "Memotong pelepah sawit",
	FormulaMemotongPelepahT: "Memotong pelepah sawit (T)",
	FormulaMeracun:          "Meracun",
	FormulaPayToGreder:      "Pay to Greder",
	FormulaPengangkutanLori: "Pengangkutan Lori",
	FormulaUpah:             "Upah",
}

// String returns the string representation of FormulaType
func (f FormulaType) String() string {
	return string(f)
}

// IsKnown reports whether f is one of the predefined formula codes
func (f FormulaType) IsKnown() bool {
	_, ok := formulaLabels[f]
	return ok
}

// Label returns the knowledge-base label for a known code, or the raw text
// for a custom formula.
func (f FormulaType) Label() string {
	if label, ok := formulaLabels[f]; ok {
		return label
	}
	return string(f)
}

// Display returns the text written to the Price & Formula sheet. It never
// starts with "=" so spreadsheet software keeps it as text.
func (f FormulaType) Display() string {
	if f == "" {
		return formulaLabels[FormulaWeightPrice]
	}
	if f == FormulaMemotongPelepahT {
		return formulaLabels[FormulaMemotongPelepah]
	}
	return strings.TrimLeft(f.Label(), "=")
}

// ParseFormulaType accepts a code ("LAIN_LAIN") or a label ("Lain Lain"),
// case-insensitively. Unknown non-empty text is kept as a custom formula;
// empty text yields FormulaWeightPrice.
func ParseFormulaType(s string) FormulaType {
	s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "="))
	if s == "" {
		return FormulaWeightPrice
	}

	code := FormulaType(strings.ToUpper(s))
	if code.IsKnown() {
		return code
	}

	for f, label := range formulaLabels {
		if strings.EqualFold(label, s) {
			return f
		}
	}
	return FormulaType(s)
}
