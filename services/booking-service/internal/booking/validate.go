package booking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

const maxNameLen = 100

// NormalizePhone strips common separators and checks E.164 form.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	return phone, e164.MatchString(phone)
}

func normalizeName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", invalid("customer_name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", invalid("customer_name", "is too long")
	}
	return name, nil
}
