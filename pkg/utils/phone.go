package utils

import "strings"

// NormalizePhone reduces a phone number to the canonical digit string used as
// the key for chats, contacts and CRM lookups.
//
//	"+7 (900) 123-45-67" -> "79001234567"
//	"8 900 123-45-67"    -> "79001234567"
//	"9001234567"         -> "79001234567"
//
// The result is stable under repeated application.
func NormalizePhone(phone string) string {
	digits := Digits(phone)

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 10:
		return "7" + digits
	}
	return digits
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// SanitizePhone normalizes a request field in place.
func SanitizePhone(phone *string) {
	if phone == nil {
		return
	}
	*phone = NormalizePhone(*phone)
}

// ChatIDForPhone returns the chat identifier (and real-time channel name) for a phone.
func ChatIDForPhone(phone string) string {
	return "chat_" + NormalizePhone(phone)
}

// PhoneFromChatID is the inverse of ChatIDForPhone.
func PhoneFromChatID(chatID string) string {
	return NormalizePhone(strings.TrimPrefix(chatID, "chat_"))
}
