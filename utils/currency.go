package utils

import (
	"strconv"
	"strings"
)

// FormatRubles formats whole rubles with a space as thousands separator.
// Example: 15000 -> "15 000 ₽"
func FormatRubles(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " ₽"
}
