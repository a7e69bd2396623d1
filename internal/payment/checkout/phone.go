package checkout

import "strings"

const localNumberLen = 10

// NormalizePhone rewrites a donor phone into +<country><number>. Input that
// does not look like a local or prefixed number is returned stripped but
// otherwise untouched.
func NormalizePhone(raw, countryCode string) string {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")

	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	switch {
	case len(cleaned) == localNumberLen:
		return "+" + countryCode + cleaned
	case countryCode != "" && len(cleaned) == len(countryCode)+localNumberLen && strings.HasPrefix(cleaned, countryCode):
		return "+" + cleaned
	case len(cleaned) == localNumberLen+1 && strings.HasPrefix(cleaned, "0"):
		return "+" + countryCode + cleaned[1:]
	default:
		return cleaned
	}
}
