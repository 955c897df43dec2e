// Package validation provides name checks shared by configuration and the
// archive.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for a name.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// FieldNameRules returns the rules for configured window field names. They
// become top-level keys of the window payload and Parquet field values, so
// dots are not allowed.
func FieldNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// PathSegmentRules returns the rules for a device id used as a directory
// name. Device ids like "sensor.1" are fine; "." and ".." are not.
func PathSegmentRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateFieldName validates a window field name.
func ValidateFieldName(name string) error {
	return ValidateName(name, FieldNameRules())
}

// ValidatePathSegment validates a name used as one directory level.
func ValidatePathSegment(name string) error {
	return ValidateName(name, PathSegmentRules())
}
