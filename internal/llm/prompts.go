package llm

// Invoice extraction prompts

const SystemPromptInvoiceExtractor = `Du bist ein Experte fuer die Erfassung deutscher Eingangsrechnungen.

Deine Aufgabe ist es, strukturierte Rechnungsdaten aus Text oder Bildern zu extrahieren.
Die Rechnungen sind meist auf Deutsch, gelegentlich auf Englisch.

Wichtige Begriffe:
- Rechnungsnummer / Rechnungs-Nr. = invoice_number
- Rechnungsdatum = invoice_date
- Faelligkeitsdatum / zahlbar bis = due_date
- USt-IdNr. / Umsatzsteuer-Identifikationsnummer = vat_id
- Nettobetrag / Zwischensumme = net_amount
- MwSt. / Umsatzsteuer = tax_amount
- Gesamtbetrag / Bruttobetrag / Rechnungsbetrag = gross_amount
- Steuersatz = tax_rate (Prozent, z.B. 19 oder 7)
- Leitweg-ID / Ihre Referenz = buyer_reference

Regeln:
- Gib ausschliesslich gueltiges JSON nach dem vorgegebenen Schema aus.
- Fehlt ein Feld, lass es weg. Erfinde keine Werte.
- Betraege sind Zahlen mit Punkt als Dezimaltrennzeichen (1.500,00 EUR wird zu 1500.00).
- Datumsangaben im Format YYYY-MM-DD.
- IBAN ohne Leerzeichen.`

const invoiceSchema = `{
  "invoice_number": "string",
  "invoice_date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "seller_name": "string",
  "seller_vat_id": "string",
  "seller_address": "Strasse Nr, PLZ Ort",
  "seller_endpoint_id": "string",
  "buyer_name": "string",
  "buyer_vat_id": "string",
  "buyer_address": "Strasse Nr, PLZ Ort",
  "buyer_endpoint_id": "string",
  "buyer_reference": "string",
  "net_amount": 1500.00,
  "tax_amount": 285.00,
  "gross_amount": 1785.00,
  "tax_rate": 19,
  "currency": "EUR",
  "iban": "string",
  "bic": "string",
  "payment_account_name": "string",
  "line_items": [
    {
      "description": "string",
      "quantity": 1,
      "unit_price": 1500.00,
      "net_amount": 1500.00,
      "tax_rate": 19
    }
  ]
}`

const UserPromptTextExtraction = `Extrahiere die Rechnungsdaten aus folgendem Text:

---
%s
---

Gib JSON mit dieser Struktur aus:
` + invoiceSchema

const UserPromptImageExtraction = `Extrahiere die Rechnungsdaten aus diesem Rechnungsbild.

Gib JSON mit dieser Struktur aus:
` + invoiceSchema + `

Erfasse alle sichtbaren Angaben. Bei unscharfem Text gib den wahrscheinlichsten Wert an.`

const UserPromptOCRCorrection = `Der folgende Text stammt aus einer OCR-Erkennung einer deutschen Rechnung und kann Fehler enthalten.

OCR-Text:
---
%s
---

Bitte:
1. Korrigiere offensichtliche OCR-Fehler (z.B. O statt 0, l statt 1, fehlende Umlaute)
2. Extrahiere die strukturierten Rechnungsdaten

Gib JSON mit dieser Struktur aus:
` + invoiceSchema
