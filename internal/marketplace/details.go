package marketplace

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sudo-init-do/skygig/internal/apperr"
)

const (
	maxLocationLen = 100
	maxTags        = 10
	maxTagLen      = 40
	maxPayAmount   = 1e12
)

func (u PayUnit) Valid() bool {
	return u == PayPerHour || u == PayPerProject
}

func (c Currency) valid() bool {
	return c == CurrencyUSD || c == CurrencyVND
}

func validatePay(p *Pay) error {
	if p == nil {
		return nil
	}
	if p.Amount <= 0 || p.Amount > maxPayAmount {
		return fmt.Errorf("%w: pay amount must be greater than 0", apperr.ErrValidation)
	}
	if !p.Unit.Valid() {
		return fmt.Errorf("%w: unknown pay unit %q", apperr.ErrValidation, p.Unit)
	}
	if !p.Currency.valid() {
		return fmt.Errorf("%w: unknown currency %q", apperr.ErrValidation, p.Currency)
	}
	return nil
}

// NormalizeTag folds a tag to lower-case ASCII words: accents are stripped,
// hyphens become spaces and other punctuation is dropped.
// "Roof-Inspection" and "roof inspection" both become "roof inspection".
func NormalizeTag(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'đ':
			b.WriteRune('d')
		case r == '-', unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalizeTags folds, dedupes and bounds a tag list. Empty tags are skipped.
func normalizeTags(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		t := NormalizeTag(r)
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, fmt.Errorf("%w: tag %q exceeds %d characters", apperr.ErrValidation, t, maxTagLen)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, fmt.Errorf("%w: at most %d tags", apperr.ErrValidation, maxTags)
	}
	return out, nil
}

// applyDetails validates location, pay and tags and sets them on j.
func applyDetails(j *JobPosting, location string, pay *Pay, tags []string) error {
	location = strings.TrimSpace(location)
	if utf8.RuneCountInString(location) > maxLocationLen {
		return fmt.Errorf("%w: location exceeds %d characters", apperr.ErrValidation, maxLocationLen)
	}
	if err := validatePay(pay); err != nil {
		return err
	}
	normalized, err := normalizeTags(tags)
	if err != nil {
		return err
	}
	j.Location = location
	if pay != nil {
		p := *pay
		j.Pay = &p
	} else {
		j.Pay = nil
	}
	j.Tags = normalized
	return nil
}
