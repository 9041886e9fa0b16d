package confidence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	dec "github.com/rechnungswerk/einvoice/internal/decimal"
	"github.com/rechnungswerk/einvoice/internal/model"
)

var (
	isoDatePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	germanDatePattern = regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`)
	germanVATPattern  = regexp.MustCompile(`^DE\d{9}$`)
	genericVATPattern = regexp.MustCompile(`^[A-Z]{2}\w+$`)
	ibanPattern       = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{4,30}$`)
	bicPattern        = regexp.MustCompile(`^[A-Z]{4}[A-Z]{2}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	postalCodePattern = regexp.MustCompile(`\d{5}`)
)

var standardTaxRates = []decimal.Decimal{
	decimal.NewFromInt(0),
	decimal.NewFromInt(7),
	decimal.NewFromInt(19),
}

var maxPlausibleTaxRate = decimal.NewFromInt(25)

func result(score int, level Level, reason string) FieldConfidence {
	return FieldConfidence{Score: score, Level: level, Reason: reason}
}

// scoreField grades a single value. Empty values are graded by field
// category before any format validator runs.
func scoreField(spec fieldSpec, value any) FieldConfidence {
	if model.IsEmptyValue(value) {
		if spec.core {
			return result(0, LevelLow, "Pflichtfeld fehlt")
		}
		return result(50, LevelMedium, "Optionales Feld fehlt")
	}

	switch spec.kind {
	case kindInvoiceNumber:
		return scoreInvoiceNumber(value)
	case kindDate:
		return scoreDate(value)
	case kindVATID:
		return scoreVATID(value)
	case kindIBAN:
		return scoreIBAN(value)
	case kindBIC:
		return scoreBIC(value)
	case kindAmount:
		return scoreAmount(value)
	case kindTaxRate:
		return scoreTaxRate(value)
	case kindName:
		return scoreName(value)
	case kindAddress:
		return scoreAddress(value)
	case kindLineItems:
		return scoreLineItems(value)
	default:
		return result(80, LevelHigh, "Wert vorhanden")
	}
}

func scoreInvoiceNumber(v any) FieldConfidence {
	s := strings.TrimSpace(asString(v))
	if utf8.RuneCountInString(s) >= 3 && strings.IndexFunc(s, unicode.IsDigit) >= 0 {
		return result(95, LevelHigh, "Rechnungsnummer plausibel")
	}
	return result(70, LevelMedium, "Ungewoehnliches Format")
}

func scoreDate(v any) FieldConfidence {
	s := strings.TrimSpace(asString(v))
	switch {
	case isoDatePattern.MatchString(s):
		return result(98, LevelHigh, "ISO-Datum")
	case germanDatePattern.MatchString(s):
		return result(90, LevelHigh, "Deutsches Datumsformat")
	default:
		return result(60, LevelLow, "Unbekanntes Datumsformat")
	}
}

func scoreVATID(v any) FieldConfidence {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(asString(v)), " ", ""))
	switch {
	case germanVATPattern.MatchString(s):
		return result(98, LevelHigh, "Deutsche USt-IdNr")
	case genericVATPattern.MatchString(s):
		return result(85, LevelHigh, "Auslaendische USt-IdNr")
	default:
		return result(50, LevelMedium, "Ungueltiges USt-IdNr-Format")
	}
}

func scoreIBAN(v any) FieldConfidence {
	s := strings.ToUpper(strings.Join(strings.Fields(asString(v)), ""))
	if ibanPattern.MatchString(s) {
		return result(95, LevelHigh, "IBAN-Format gueltig")
	}
	return result(40, LevelLow, "Ungueltiges IBAN-Format")
}

func scoreBIC(v any) FieldConfidence {
	s := strings.ToUpper(strings.TrimSpace(asString(v)))
	if bicPattern.MatchString(s) {
		return result(95, LevelHigh, "BIC-Format gueltig")
	}
	return result(40, LevelLow, "Ungueltiges BIC-Format")
}

func scoreAmount(v any) FieldConfidence {
	d, ok := dec.ToDecimal(v)
	switch {
	case !ok:
		return result(20, LevelLow, "Kein gueltiger Betrag")
	case d.IsPositive():
		return result(90, LevelHigh, "Betrag plausibel")
	case d.IsZero():
		return result(60, LevelLow, "Betrag ist 0")
	default:
		return result(50, LevelMedium, "Negativer Betrag")
	}
}

func scoreTaxRate(v any) FieldConfidence {
	d, ok := dec.ToDecimal(v)
	if !ok {
		return result(20, LevelLow, "Kein gueltiger Steuersatz")
	}
	for _, r := range standardTaxRates {
		if d.Equal(r) {
			return result(98, LevelHigh, "Standard-Steuersatz")
		}
	}
	if !d.IsNegative() && d.LessThanOrEqual(maxPlausibleTaxRate) {
		return result(80, LevelHigh, "Plausibler Steuersatz")
	}
	return result(40, LevelLow, "Ungewoehnlicher Steuersatz")
}

func scoreName(v any) FieldConfidence {
	if utf8.RuneCountInString(strings.TrimSpace(asString(v))) >= 3 {
		return result(90, LevelHigh, "Name erkannt")
	}
	return result(50, LevelMedium, "Name sehr kurz")
}

func scoreAddress(v any) FieldConfidence {
	s := strings.TrimSpace(asString(v))
	if utf8.RuneCountInString(s) < 10 {
		return result(40, LevelLow, "Adresse unvollstaendig")
	}
	if postalCodePattern.MatchString(s) {
		return result(95, LevelHigh, "Adresse mit PLZ")
	}
	return result(75, LevelMedium, "Adresse ohne PLZ")
}

func scoreLineItems(v any) FieldConfidence {
	items, ok := asList(v)
	if !ok || len(items) == 0 {
		return result(30, LevelLow, "Keine Positionen")
	}

	valid := 0
	for _, item := range items {
		m, ok := item.(map[string]any)
		if ok && !model.IsEmptyValue(m["description"]) {
			valid++
		}
	}
	if valid == len(items) {
		return result(95, LevelHigh, fmt.Sprintf("%d Positionen erkannt", len(items)))
	}
	return result(70, LevelMedium, fmt.Sprintf("%d/%d gueltig", valid, len(items)))
}

// asString renders OCR values that arrive as numbers the way they were read
func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	default:
		return nil, false
	}
}
