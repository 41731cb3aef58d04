package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency label shown next to every amount
const Currency = "RUB"

// FormatBalance formats an amount with thousand separators and two decimals
func FormatBalance(amount decimal.Decimal) string {
	str := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(str, ".")

	n := len(whole)
	var result strings.Builder
	if amount.IsNegative() {
		result.WriteRune('-')
	}
	for i, digit := range whole {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}
	result.WriteRune('.')
	result.WriteString(frac)
	return result.String()
}

// FormatAmount formats an amount with its currency
func FormatAmount(amount decimal.Decimal) string {
	return fmt.Sprintf("%s %s", FormatBalance(amount), Currency)
}

// FormatSignedAmount formats a ledger delta with an explicit sign
func FormatSignedAmount(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return "+" + FormatAmount(amount)
	}
	return FormatAmount(amount)
}

// FormatTimestamp formats a time in UTC for chat messages
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
