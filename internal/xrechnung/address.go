package xrechnung

import (
	"regexp"
	"strings"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// postalCityPattern finds a German postal code; the rest of the text is the city
var postalCityPattern = regexp.MustCompile(`(\d{5})\s+([^\d\s].*)`)

// Address is a free-text address split into UBL PostalAddress parts
type Address struct {
	Street     string
	PostalCode string
	City       string
}

// ParseAddress splits a free-text address. A "12345 City" match wins; otherwise
// the first comma-separated segment is the street and the second the city;
// otherwise the whole text is the street.
func ParseAddress(text string) Address {
	text = strings.TrimSpace(text)
	if text == "" {
		return Address{}
	}

	if loc := postalCityPattern.FindStringSubmatchIndex(text); loc != nil {
		street := strings.TrimRight(strings.TrimSpace(text[:loc[0]]), ",")
		return Address{
			Street:     strings.TrimSpace(street),
			PostalCode: text[loc[2]:loc[3]],
			City:       strings.TrimSpace(text[loc[4]:loc[5]]),
		}
	}

	if strings.Contains(text, ",") {
		parts := strings.Split(text, ",")
		addr := Address{Street: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			addr.City = strings.TrimSpace(parts[1])
		}
		return addr
	}

	return Address{Street: text}
}

// CountryFromVATID derives the ISO country code from a VAT ID prefix, DE otherwise
func CountryFromVATID(vatID string) string {
	vatID = strings.TrimSpace(vatID)
	if len(vatID) >= 2 && isASCIILetter(vatID[0]) && isASCIILetter(vatID[1]) {
		return strings.ToUpper(vatID[:2])
	}
	return model.DefaultCountryCode
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
