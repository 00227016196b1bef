// Package validation checks user input before it reaches the session state or the drug directory.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/rxwriter/interfaces"
)

const (
	MaxQueryLength      = 100
	MaxFieldValueLength = 500
	maxRepeatedRunes    = 10
)

// Search queries are forwarded to the directory, so markup and injection fragments are refused.
// Shell metacharacters are allowed: brand names such as "JOHNSON & JOHNSON" use them.
var dangerousPatterns = []string{
	"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
	"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
	"eval(", "expression(", "url(", "@import", "binding(", "behavior(",
	// SQL injection patterns
	"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
	"update set", "/*", "*/", "exec(", "execute(",
	// Path traversal patterns
	"../", "..\\", "%2e%2e", "file://",
	// NoSQL injection patterns
	"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
}

// ErrUnsafeQuery marks a query that matched the dangerous-pattern list
var ErrUnsafeQuery = errors.New("query contains potentially dangerous content")

// Compile-time check to ensure Validator implements InputValidator
var _ interfaces.InputValidator = (*Validator)(nil)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateQuery checks a search query. Empty and short queries are valid; they clear the search.
func (v *Validator) ValidateQuery(query string) error {
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return fmt.Errorf("query too long: maximum %d characters", MaxQueryLength)
	}

	if !utf8.ValidString(query) {
		return fmt.Errorf("query contains invalid UTF-8")
	}

	for _, r := range query {
		if unicode.IsControl(r) {
			return fmt.Errorf("query contains control characters")
		}
	}

	lower := strings.ToLower(query)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return ErrUnsafeQuery
		}
	}

	if hasExcessiveRepetition(query) {
		return fmt.Errorf("query contains excessive character repetition")
	}

	return nil
}

// ValidateFieldValue checks a free-text form value such as a sig or a pharmacist name
func (v *Validator) ValidateFieldValue(value string) error {
	if utf8.RuneCountInString(value) > MaxFieldValueLength {
		return fmt.Errorf("value too long: maximum %d characters", MaxFieldValueLength)
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("value contains invalid UTF-8")
	}

	for _, r := range value {
		if r == '\t' || r == '\n' {
			continue
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("value contains control characters")
		}
	}

	return nil
}

// ValidateDrugCode parses a DPD drug code. Custom entries use 0 and are never selectable.
func (v *Validator) ValidateDrugCode(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return -1, fmt.Errorf("drug code cannot be empty")
	}

	// Reject if original input contained whitespace (spaces, tabs, etc.)
	if len(input) != len(trimmed) {
		return -1, fmt.Errorf("drug code contains invalid characters. Only numeric characters are allowed")
	}

	code, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("drug code contains invalid characters. Only numeric characters are allowed")
	}

	if code <= 0 {
		return -1, fmt.Errorf("drug code must be a positive integer")
	}

	return code, nil
}

// hasExcessiveRepetition reports the same rune repeated more than maxRepeatedRunes times in a row
func hasExcessiveRepetition(input string) bool {
	var prev rune
	run := 0
	for _, r := range input {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > maxRepeatedRunes {
			return true
		}
	}
	return false
}
