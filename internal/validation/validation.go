// Package validation checks caller-supplied identifiers used by the OAuth2 flow
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Validation settings
const (
	MinStateLength   = 40  // Minimum state token length
	MaxStateLength   = 128 // Maximum state token length
	MinStateEntropy  = 4   // Minimum Shannon entropy of a state token in bits per character
	MaxContextKeyLen = 64
)

var (
	stateRegex      = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	contextKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

	// resource[.subresource]:r|a, e.g. entity.clients:r
	scopeRegex = regexp.MustCompile(`^[a-z_]+(\.[a-z_]+)?:[ra]$`)
)

// ValidationError represents an invalid input value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidateStateToken checks a caller-supplied state token is long,
// alphanumeric and not trivially guessable
func ValidateStateToken(token string) error {
	if len(token) < MinStateLength || len(token) > MaxStateLength {
		return &ValidationError{
			Field:   "state",
			Message: fmt.Sprintf("length must be between %d and %d characters", MinStateLength, MaxStateLength),
		}
	}
	if !stateRegex.MatchString(token) {
		return &ValidationError{
			Field:   "state",
			Message: "only alphanumeric characters are allowed",
		}
	}
	if entropy := calculateEntropy(token); entropy < MinStateEntropy {
		return &ValidationError{
			Field:   "state",
			Message: fmt.Sprintf("entropy %.2f bits is below required minimum %d bits", entropy, MinStateEntropy),
		}
	}
	return nil
}

// ValidateContextKey checks a tenant key is safe to embed in storage keys
func ValidateContextKey(key string) error {
	if key == "" || len(key) > MaxContextKeyLen {
		return &ValidationError{
			Field:   "context key",
			Message: fmt.Sprintf("length must be between 1 and %d characters", MaxContextKeyLen),
		}
	}
	if !contextKeyRegex.MatchString(key) {
		return &ValidationError{
			Field:   "context key",
			Message: "only letters, digits, '.', '_' and '-' are allowed",
		}
	}
	return nil
}

// ValidateScopes checks every scope has the resource:permission shape
func ValidateScopes(scopes []string) error {
	for _, s := range scopes {
		if !scopeRegex.MatchString(s) {
			return &ValidationError{
				Field:   "scope",
				Message: fmt.Sprintf("%q must look like resource:r or resource.sub:a", s),
			}
		}
	}
	return nil
}

// NormalizeScopes splits space or comma separated scope lists and drops
// blanks and duplicates, keeping order
func NormalizeScopes(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range raw {
		for _, s := range strings.FieldsFunc(item, func(r rune) bool { return r == ' ' || r == ',' }) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// calculateEntropy calculates the Shannon entropy of s in bits per character
func calculateEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	freqs := make(map[rune]int)
	for _, char := range s {
		freqs[char]++
	}

	length := float64(len(s))
	entropy := 0.0
	for _, count := range freqs {
		prob := float64(count) / length
		entropy -= prob * math.Log2(prob)
	}

	return entropy
}
