package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
)

// recordSchema constrains one coerced extraction record
const recordSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"date":          {"type": "string"},
		"invoice_no":    {"type": "string"},
		"customer_name": {"type": "string"},
		"service_type":  {"type": "string"},
		"is_count":      {"type": "boolean"},
		"weight_kg":     {"type": ["number", "null"], "minimum": 0},
		"price_per_ton": {"type": ["number", "null"], "minimum": 0},
		"total":         {"type": ["number", "null"], "minimum": 0}
	}
}`

var numericFields = []string{"weight_kg", "price_per_ton", "total"}

var stringFields = []string{"date", "invoice_no", "customer_name", "service_type"}

// CompileRecordSchema compiles the extraction record schema
func CompileRecordSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ExtractJSON returns the JSON payload in a model answer: the body of a
// fenced json block, else the outermost array span, else the outermost
// object span. It returns "" when nothing looks like JSON.
func ExtractJSON(text string) string {
	if start := strings.Index(text, "```json"); start >= 0 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
		return strings.TrimSpace(body)
	}

	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start >= 0 && end > start {
			return text[start : end+1]
		}
	}
	return ""
}

// ParseRecords decodes a model answer into typed records. A bare object is
// treated as a one-element list and non-object members are dropped. Records
// that fail coercion or schema validation are skipped and collected.
func ParseRecords(text, source string, schema *jsonschema.Schema) ([]models.ExtractionRecord, *errors.Collector, error) {
	skipped := errors.NewCollector(20)

	payload := ExtractJSON(text)
	if payload == "" {
		return nil, skipped, errors.ExtractionError(errors.CodeInvalidResponse, source, fmt.Errorf("no JSON in model answer"))
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, skipped, errors.ExtractionError(errors.CodeInvalidResponse, source, err)
	}

	var items []interface{}
	switch v := decoded.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
	default:
		return nil, skipped, errors.ExtractionError(errors.CodeInvalidResponse, source,
			fmt.Errorf("unexpected JSON %T", decoded))
	}

	records := make([]models.ExtractionRecord, 0, len(items))
	for i, item := range items {
		loc := errors.Location{Source: source, Row: i + 1}

		raw, ok := item.(map[string]interface{})
		if !ok {
			skipped.Add(errors.NewSkipped(errors.CategoryExtraction, errors.CodeRecordMalformed, loc,
				fmt.Sprintf("record is %T, not an object", item)))
			continue
		}

		coerced, err := Coerce(raw)
		if err == nil && schema != nil {
			err = schema.Validate(coerced)
		}
		if err != nil {
			skipped.Add(errors.NewSkipped(errors.CategoryExtraction, errors.CodeRecordMalformed, loc, err.Error()))
			continue
		}

		rec := FixLainLain(toRecord(coerced))
		rec.SourceFile = source
		rec.RecordIndex = i + 1
		records = append(records, rec)
	}

	return records, skipped, nil
}

// Coerce normalizes one raw record: numbers written as strings ("RM 103.00",
// "4,270") become numbers, numeric invoice numbers become strings, and a
// missing is_count is derived from the service type.
func Coerce(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for _, field := range stringFields {
		switch v := out[field].(type) {
		case nil:
			delete(out, field)
		case float64:
			out[field] = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			out[field] = strings.TrimSpace(v)
		}
	}

	for _, field := range numericFields {
		s, ok := out[field].(string)
		if !ok {
			continue
		}
		if strings.TrimSpace(s) == "" {
			out[field] = nil
			continue
		}
		d, err := models.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out[field] = d.InexactFloat64()
	}

	switch v := out["is_count"].(type) {
	case nil:
		service, _ := out["service_type"].(string)
		out["is_count"] = models.IsCountService(service)
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("is_count: %w", err)
		}
		out["is_count"] = b
	case float64:
		out["is_count"] = v != 0
	}

	return out, nil
}

func toRecord(m map[string]interface{}) models.ExtractionRecord {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	num := func(key string) decimal.NullDecimal {
		f, ok := m[key].(float64)
		if !ok {
			return decimal.NullDecimal{}
		}
		return models.NullAmount(decimal.NewFromFloat(f))
	}
	isCount, _ := m["is_count"].(bool)

	return models.ExtractionRecord{
		Date:         str("date"),
		InvoiceNo:    str("invoice_no"),
		CustomerName: str("customer_name"),
		ServiceType:  str("service_type"),
		IsCount:      isCount,
		WeightKG:     num("weight_kg"),
		PricePerTon:  num("price_per_ton"),
		Total:        num("total"),
	}
}

// FixLainLain corrects a common misreading of Lain-lain lines, where the
// price lands in the weight field: the weight becomes 1, the misread value
// is used as the price when no price was read, and the total equals the
// price.
func FixLainLain(r models.ExtractionRecord) models.ExtractionRecord {
	if !strings.Contains(strings.ToLower(r.ServiceType), "lain") {
		return r
	}
	one := decimal.NewFromInt(1)
	if r.WeightKG.Valid && r.WeightKG.Decimal.Equal(one) {
		return r
	}

	misread := r.WeightKG
	r.WeightKG = models.NullAmount(one)
	if !r.PricePerTon.Valid || r.PricePerTon.Decimal.IsZero() {
		r.PricePerTon = misread
	}
	if r.PricePerTon.Valid {
		r.Total = r.PricePerTon
	}
	return r
}
