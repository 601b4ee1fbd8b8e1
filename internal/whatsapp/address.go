package whatsapp

import "strings"

const (
	// UserSuffix marks an individual chat id.
	UserSuffix = "@c.us"
	// GroupSuffix marks a group chat id.
	GroupSuffix = "@g.us"

	defaultCountryCode = "62"
)

// FormatPhoneNumber normalizes a phone number to a chat id: non-digits are
// stripped, a leading 0 is replaced by the default country code and the
// user suffix is appended. Ids that already carry a suffix are returned
// unchanged.
func FormatPhoneNumber(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasSuffix(number, UserSuffix) || strings.HasSuffix(number, GroupSuffix) {
		return number
	}

	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = defaultCountryCode + digits[1:]
	}
	return digits + UserSuffix
}

// IsGroupID reports whether id names a group chat.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}
