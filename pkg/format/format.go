// Package format holds display and document helpers used around the loan core.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF checks a Brazilian taxpayer number. Punctuation is ignored.
// It reports the result instead of failing; callers branch on it.
func ValidateCPF(cpf string) bool {
	cpf = digitsOnly(cpf)
	if len(cpf) != 11 {
		return false
	}
	if strings.Count(cpf, cpf[:1]) == len(cpf) {
		return false
	}

	d := make([]int, len(cpf))
	for i, r := range cpf {
		d[i] = int(r - '0')
	}
	return checkDigit(d[:9]) == d[9] && checkDigit(d[:10]) == d[10]
}

func checkDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for _, v := range digits {
		sum += v * weight
		weight--
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		return 0
	}
	return rem
}

// FormatCPF renders 11 digits as 000.000.000-00. Other inputs come back as
// their digits.
func FormatCPF(cpf string) string {
	cpf = digitsOnly(cpf)
	if len(cpf) != 11 {
		return cpf
	}
	return cpf[:3] + "." + cpf[3:6] + "." + cpf[6:9] + "-" + cpf[9:]
}

// FormatPhone renders mobile (11 digits) or landline (10 digits) numbers.
func FormatPhone(phone string) string {
	phone = digitsOnly(phone)
	switch len(phone) {
	case 11:
		return "(" + phone[:2] + ") " + phone[2:7] + "-" + phone[7:]
	case 10:
		return "(" + phone[:2] + ") " + phone[2:6] + "-" + phone[6:]
	default:
		return phone
	}
}

// ValidatePhone accepts Brazilian numbers with area code: 10 digits for
// landlines, 11 for mobiles.
func ValidatePhone(phone string) bool {
	n := len(digitsOnly(phone))
	return n == 10 || n == 11
}

// ValidateZipCode accepts an 8-digit CEP with or without its hyphen.
func ValidateZipCode(zip string) bool {
	return len(digitsOnly(zip)) == 8
}

// FormatCurrency renders an amount in reais: R$ 1.234,56. The separator after
// the symbol is a non-breaking space.
func FormatCurrency(value decimal.Decimal) string {
	sign := ""
	if value.IsNegative() {
		sign = "-"
		value = value.Neg()
	}

	fixed := value.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$\u00a0" + b.String() + "," + frac
}
