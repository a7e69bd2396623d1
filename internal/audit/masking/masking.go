package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a credential, keeping its prefix and last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskEmail keeps the first character of the local part and the domain: a****@example.com.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskPhone keeps the last four digits.
func MaskPhone(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 4 {
		if trimmed == "" {
			return ""
		}
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

var piiKeys = map[string]func(string) string{
	"customer_email": MaskEmail,
	"customer_phone": MaskPhone,
	"customer_name":  maskName,
	"donor_email":    MaskEmail,
	"donor_phone":    MaskPhone,
	"donor_name":     maskName,
	"email":          MaskEmail,
	"phone":          MaskPhone,
}

// MaskPII returns a copy of a decoded JSON document with donor contact fields
// masked at any depth. Other values are kept as-is.
func MaskPII(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		if fn, ok := piiKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
			if s, isString := value.(string); isString {
				masked[key] = fn(s)
				continue
			}
		}
		masked[key] = maskValue(value)
	}
	return masked
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskPII(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	default:
		return value
	}
}

func maskName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return trimmed[:1] + maskToken
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
