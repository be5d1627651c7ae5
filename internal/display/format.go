package display

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLocale groups thousands the way the Brazilian console does: 1.234.567.
const DefaultLocale = "pt-BR"

// Formatter renders counters with locale-aware digit grouping.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter creates a Formatter for the given BCP 47 tag, falling back to
// DefaultLocale when the tag does not parse.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Count formats n with thousands separators.
func (f *Formatter) Count(n int64) string {
	return f.printer.Sprintf("%d", n)
}

// Percent formats p with one decimal.
func (f *Formatter) Percent(p float64) string {
	return f.printer.Sprintf("%.1f%%", p)
}
