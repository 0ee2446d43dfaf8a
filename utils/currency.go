package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a rupee amount to paise, rounding half away from zero.
// Example: 100.505 -> 10051
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FormatCurrencyINR formats an amount using Indian digit grouping.
// Example: 1234567.5 -> "₹12,34,567.50"
func FormatCurrencyINR(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	parts := strings.SplitN(fixed, ".", 2)
	integer, fraction := parts[0], parts[1]

	// last three digits, then groups of two
	if len(integer) > 3 {
		head, tail := integer[:len(integer)-3], integer[len(integer)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		integer = strings.Join(groups, ",") + "," + tail
	}

	return sign + "₹" + integer + "." + fraction
}
