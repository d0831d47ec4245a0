package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var rupiah = message.NewPrinter(language.Indonesian)

// FormatCurrency renders amount in Rupiah with Indonesian digit grouping and
// no fraction, e.g. "Rp 50.000".
func FormatCurrency(amount float64) string {
	return rupiah.Sprintf("Rp %v", number.Decimal(amount, number.MaxFractionDigits(0)))
}
