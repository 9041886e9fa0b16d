// Package zugferd moves invoice XML in and out of PDF attachments, the
// container used by ZUGFeRD / Factur-X hybrid invoices.
package zugferd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rechnungswerk/einvoice/internal/model"
)

// Well-known attachment names in order of preference
const (
	FacturXName   = "factur-x.xml"
	ZUGFeRDName   = "zugferd-invoice.xml"
	XRechnungName = "xrechnung.xml"
)

var preferredNames = []string{FacturXName, ZUGFeRDName, XRechnungName}

// ErrNoInvoiceXML is the cause of a ParseError for PDFs without XML attachment
var ErrNoInvoiceXML = errors.New("no XML attachment found")

func config() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// SelectInvoiceAttachment picks the attachment carrying the invoice: a
// well-known name first, otherwise the first .xml file.
func SelectInvoiceAttachment(names []string) (string, bool) {
	for _, preferred := range preferredNames {
		for _, n := range names {
			if strings.EqualFold(n, preferred) {
				return n, true
			}
		}
	}
	for _, n := range names {
		if strings.EqualFold(filepath.Ext(n), ".xml") {
			return n, true
		}
	}
	return "", false
}

// ExtractXML returns the embedded invoice XML of a hybrid PDF invoice
func ExtractXML(pdf io.ReadSeeker) ([]byte, error) {
	attachments, err := api.ExtractAttachmentsRaw(pdf, "", nil, config())
	if err != nil {
		return nil, model.NewParseError(model.FormatPDF, "attachments", "failed to read PDF attachments", err)
	}

	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.FileName)
	}
	name, ok := SelectInvoiceAttachment(names)
	if !ok {
		return nil, model.NewParseError(model.FormatPDF, "attachments", "PDF carries no invoice XML", ErrNoInvoiceXML)
	}

	for _, a := range attachments {
		if a.FileName != name {
			continue
		}
		data, err := io.ReadAll(a)
		if err != nil {
			return nil, model.NewParseError(model.FormatPDF, name, "failed to read attachment", err)
		}
		return data, nil
	}
	return nil, model.NewParseError(model.FormatPDF, "attachments", "PDF carries no invoice XML", ErrNoInvoiceXML)
}

// EmbedXML writes pdf with xml attached under name to w. An empty name
// defaults to xrechnung.xml.
func EmbedXML(pdf io.ReadSeeker, w io.Writer, xml []byte, name string) error {
	if len(bytes.TrimSpace(xml)) == 0 {
		return fmt.Errorf("embed: empty XML")
	}
	if name == "" {
		name = XRechnungName
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("embed: attachment name %q must not contain a path", name)
	}

	// pdfcpu attaches files from disk and uses the base name as attachment name
	dir, err := os.MkdirTemp("", "rechnungswerk-embed-")
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, xml, 0o600); err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if err := api.AddAttachments(pdf, w, []string{path}, false, config()); err != nil {
		return model.NewParseError(model.FormatPDF, "attachments", "failed to attach XML", err)
	}
	return nil
}
