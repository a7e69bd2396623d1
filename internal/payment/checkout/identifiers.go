package checkout

import (
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultOrderPrefix = "DON"

	maxCustomerIDLen = 50
	orderSuffixLen   = 8
)

// NewOrderID returns <PREFIX>_<unix-ms>_<random>. Uniqueness is best effort,
// the gateway rejects a reused order id.
func NewOrderID(prefix string, now time.Time) string {
	prefix = sanitizeIdentifier(strings.ToUpper(strings.TrimSpace(prefix)))
	if prefix == "" {
		prefix = DefaultOrderPrefix
	}

	s := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + s[len(s)-orderSuffixLen:]
}

// CustomerID derives the gateway customer id from the donor email. The gateway
// accepts letters, digits and underscores only.
func CustomerID(email string, now time.Time) string {
	suffix := "_" + strconv.FormatInt(now.UnixMilli(), 10)

	base := sanitizeIdentifier(strings.ReplaceAll(slug.Make(strings.TrimSpace(email)), "-", "_"))
	if base == "" {
		base = "donor"
	}
	if limit := maxCustomerIDLen - len(suffix); len(base) > limit {
		base = strings.TrimRight(base[:limit], "_")
	}
	return base + suffix
}

func sanitizeIdentifier(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
