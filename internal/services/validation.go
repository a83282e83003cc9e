package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	domain "github.com/rupeeplan/api/internal/domain"
)

// Field validators shared by the customer-facing services. Each returns the
// normalised value so callers persist a canonical form.

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

func normalizeEmailAddress(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return "", errors.New("email address is invalid")
	}
	return email, nil
}

// normalizePhoneNumber strips formatting characters and keeps the digits.
// Indian numbers arrive with and without the +91 prefix, so only the digit
// count is enforced.
func normalizePhoneNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	if len(phone) < 10 {
		return "", errors.New("phone number must contain at least 10 digits")
	}
	if len(phone) > 15 {
		return "", errors.New("phone number cannot exceed 15 digits")
	}
	return phone, nil
}

func normalizePAN(raw string) (string, error) {
	pan := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if pan == "" {
		return "", errors.New("pan is required")
	}
	if !panPattern.MatchString(pan) {
		return "", errors.New("pan format is invalid, expected ABCDE1234F")
	}
	return pan, nil
}

func normalizePersonName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", errors.New("name is required")
	}
	if len(name) < 3 {
		return "", errors.New("name must be at least 3 characters")
	}
	if len(name) > 100 {
		return "", errors.New("name cannot exceed 100 characters")
	}
	return name, nil
}

func normalizeTaxSegment(raw domain.TaxSegment) (domain.TaxSegment, error) {
	segment := domain.TaxSegment(strings.ToLower(strings.TrimSpace(string(raw))))
	switch segment {
	case domain.TaxSegmentPersonal, domain.TaxSegmentBusiness:
		return segment, nil
	case "":
		return "", errors.New("segment is required")
	default:
		return "", fmt.Errorf("unknown segment %q", raw)
	}
}

func normalizeOptionalRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizePagination(p domain.Pagination) domain.Pagination {
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	p.PageToken = strings.TrimSpace(p.PageToken)
	return p
}
