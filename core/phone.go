package core

import (
	"strings"
)

// PhonePolicy describes which national numbers are accepted.
type PhonePolicy struct {
	// CountryCode without the leading '+', e.g. "91".
	CountryCode string
	// NationalLength is the exact digit count of the national number.
	NationalLength int
	// LeadingDigits lists the allowed first digits of the national number.
	LeadingDigits string
}

func DefaultPhonePolicy() PhonePolicy {
	return PhonePolicy{CountryCode: "91", NationalLength: 10, LeadingDigits: "6789"}
}

func (p PhonePolicy) withDefaults() PhonePolicy {
	d := DefaultPhonePolicy()
	if p.CountryCode == "" {
		p.CountryCode = d.CountryCode
	}
	p.CountryCode = strings.TrimPrefix(p.CountryCode, "+")
	if p.NationalLength <= 0 {
		p.NationalLength = d.NationalLength
	}
	if p.LeadingDigits == "" {
		p.LeadingDigits = d.LeadingDigits
	}
	return p
}

// PhoneNumber is a validated national number plus its country code.
// The zero value is not a valid number.
type PhoneNumber struct {
	countryCode string
	national    string
}

// Parse normalizes raw and validates it against the policy. Separators
// (spaces, dashes, dots, parentheses) are dropped and a "+CC", "00CC" or
// trunk "0" prefix is stripped before validation.
func (p PhonePolicy) Parse(raw string) (PhoneNumber, error) {
	p = p.withDefaults()
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if s == "" {
		return PhoneNumber{}, invalidInput("phone number required")
	}

	switch {
	case strings.HasPrefix(s, "+"+p.CountryCode):
		s = strings.TrimPrefix(s, "+"+p.CountryCode)
	case strings.HasPrefix(s, "+"):
		return PhoneNumber{}, invalidInput("unsupported country code")
	case strings.HasPrefix(s, "00"+p.CountryCode) && len(s) == len("00"+p.CountryCode)+p.NationalLength:
		s = strings.TrimPrefix(s, "00"+p.CountryCode)
	case strings.HasPrefix(s, "0") && len(s) == p.NationalLength+1:
		s = s[1:]
	}

	if len(s) != p.NationalLength {
		return PhoneNumber{}, invalidInput("phone number must have %d digits", p.NationalLength)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return PhoneNumber{}, invalidInput("phone number must be numeric")
		}
	}
	if !strings.ContainsRune(p.LeadingDigits, rune(s[0])) {
		return PhoneNumber{}, invalidInput("phone number must start with one of %q", p.LeadingDigits)
	}
	return PhoneNumber{countryCode: p.CountryCode, national: s}, nil
}

// ParsePhoneNumber validates raw against DefaultPhonePolicy.
func ParsePhoneNumber(raw string) (PhoneNumber, error) {
	return DefaultPhonePolicy().Parse(raw)
}

func (n PhoneNumber) IsZero() bool     { return n.national == "" }
func (n PhoneNumber) National() string { return n.national }

// E164 returns "+<cc><national>".
func (n PhoneNumber) E164() string {
	if n.IsZero() {
		return ""
	}
	return "+" + n.countryCode + n.national
}

func (n PhoneNumber) String() string { return n.E164() }

// Masked hides all but the last four digits, for logs and client views.
func (n PhoneNumber) Masked() string {
	if n.IsZero() {
		return ""
	}
	keep := 4
	if len(n.national) < keep {
		keep = len(n.national)
	}
	return "+" + n.countryCode + strings.Repeat("*", len(n.national)-keep) + n.national[len(n.national)-keep:]
}
