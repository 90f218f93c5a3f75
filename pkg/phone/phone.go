// Package phone canonicalizes Brazilian phone numbers to one comparable
// E.164-like form (DDI 55, two-digit area code, nine-digit mobile).
package phone

import (
	"regexp"
	"strings"
)

const countryPrefix = "55"

var nonDigits = regexp.MustCompile(`\D+`)

// OnlyDigits strips everything but 0-9.
func OnlyDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// Canonicalize normalizes a raw phone number (or a provider JID such as
// "5511999990000@s.whatsapp.net") to digits with the 55 country prefix,
// inserting the mobile '9' where legacy eight-digit numbers lack it.
// It returns "" when the input cannot carry a full national number; callers
// must treat that as "drop this contact", not as a fatal error.
// Canonicalize(Canonicalize(x)) == Canonicalize(x) for every input.
func Canonicalize(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	num := OnlyDigits(raw)
	if len(num) < 10 {
		return ""
	}

	if !strings.HasPrefix(num, countryPrefix) {
		switch {
		case len(num) == 10:
			// area code + 8 digits: insert the mobile '9'
			num = countryPrefix + num[:2] + "9" + num[2:]
		case len(num) == 11:
			num = countryPrefix + num
		default:
			// over-long or foreign-prefixed input: keep the last 11 digits
			num = countryPrefix + num[len(num)-11:]
		}
		return num
	}

	switch {
	case len(num) == 12:
		// 55 + area code + 8 digits: insert the mobile '9'
		num = num[:4] + "9" + num[4:]
	case len(num) == 13:
		// already canonical
	case len(num) > 13:
		num = countryPrefix + num[len(num)-11:]
	}
	return num
}
