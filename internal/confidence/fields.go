package confidence

// validatorKind selects the format validator applied to a field
type validatorKind int

const (
	kindGeneric validatorKind = iota
	kindInvoiceNumber
	kindDate
	kindVATID
	kindIBAN
	kindBIC
	kindAmount
	kindTaxRate
	kindName
	kindAddress
	kindLineItems
)

type fieldSpec struct {
	name string
	core bool
	kind validatorKind
}

// fieldTable is the fixed field universe: 11 core fields followed by 10
// optional ones. Order determines iteration order of the scorer.
var fieldTable = [...]fieldSpec{
	{name: "invoice_number", core: true, kind: kindInvoiceNumber},
	{name: "invoice_date", core: true, kind: kindDate},
	{name: "seller_name", core: true, kind: kindName},
	{name: "seller_vat_id", core: true, kind: kindVATID},
	{name: "seller_address", core: true, kind: kindAddress},
	{name: "buyer_name", core: true, kind: kindName},
	{name: "buyer_address", core: true, kind: kindAddress},
	{name: "net_amount", core: true, kind: kindAmount},
	{name: "tax_amount", core: true, kind: kindAmount},
	{name: "gross_amount", core: true, kind: kindAmount},
	{name: "tax_rate", core: true, kind: kindTaxRate},

	{name: "due_date", kind: kindDate},
	{name: "buyer_vat_id", kind: kindVATID},
	{name: "iban", kind: kindIBAN},
	{name: "bic", kind: kindBIC},
	{name: "payment_account_name", kind: kindGeneric},
	{name: "buyer_reference", kind: kindGeneric},
	{name: "seller_endpoint_id", kind: kindGeneric},
	{name: "buyer_endpoint_id", kind: kindGeneric},
	{name: "currency", kind: kindGeneric},
	{name: "line_items", kind: kindLineItems},
}

// coreFieldCount is the denominator of completeness
const coreFieldCount = 11

// amountFields receive the consistency adjustment
var amountFields = [...]string{"net_amount", "tax_amount", "gross_amount"}

// CoreFields returns the names of the mandatory fields
func CoreFields() []string {
	return names(true)
}

// OptionalFields returns the names of the optional fields
func OptionalFields() []string {
	return names(false)
}

func names(core bool) []string {
	var out []string
	for _, f := range fieldTable {
		if f.core == core {
			out = append(out, f.name)
		}
	}
	return out
}
