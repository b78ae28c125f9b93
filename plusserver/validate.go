package plusserver

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

// PartLength is the number of characters carried by one SMS part.
const PartLength = 160

const (
	minRecipientDigits = 3
	maxRecipientDigits = 20
)

// ErrInvalidRecipient is returned when a recipient is not shaped like a phone number.
var ErrInvalidRecipient = errors.New("invalid recipient")

// NormalizeRecipient strips formatting characters from a phone number.
// International numbers ("+" prefix) are checked with libphonenumber and
// returned in E.164; national numbers and short codes only need to be digits.
func NormalizeRecipient(input string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(input) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')', r == '.', r == '/':
			// formatting
		default:
			return "", ErrInvalidRecipient
		}
	}

	number := b.String()
	digits := strings.TrimPrefix(number, "+")
	if len(digits) < minRecipientDigits || len(digits) > maxRecipientDigits {
		return "", ErrInvalidRecipient
	}

	if !strings.HasPrefix(number, "+") {
		return number, nil
	}

	num, err := phonenumbers.Parse(number, "")
	if err != nil {
		return "", ErrInvalidRecipient
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidRecipient
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Parts returns how many SMS parts body needs.
func Parts(body string) int {
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return 0
	}
	return (n + PartLength - 1) / PartLength
}

func validEncoding(encoding string) bool {
	switch encoding {
	case EncodingISO, EncodingGSM, EncodingUTF8, EncodingUCS2:
		return true
	}
	return false
}

// validateSubmit rejects a submission before any network call.
func validateSubmit(p params, recipient, body string) (string, error) {
	normalized, err := NormalizeRecipient(recipient)
	if err != nil {
		return "", validationError("recipient %q is not a phone number", recipient)
	}
	if strings.TrimSpace(body) == "" {
		return "", validationError("message body is required")
	}
	if !validEncoding(p.Encoding) {
		return "", validationError("unsupported encoding %q", p.Encoding)
	}
	if p.MaxParts < 1 {
		return "", validationError("max parts must be at least 1 (got %d)", p.MaxParts)
	}

	length := utf8.RuneCountInString(body)
	if length > p.MaxParts*PartLength {
		return "", validationError(
			"message body of %d characters exceeds %d part(s) of %d characters",
			length, p.MaxParts, PartLength,
		)
	}

	return normalized, nil
}

func checkCredentials(p params) error {
	if p.Username == "" || p.Password == "" {
		return configurationError("service credentials not defined")
	}
	return nil
}
