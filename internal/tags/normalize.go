package tags

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "document-archive/internal/errors"
)

// MaxTagsPerDocument caps the distinct tags on one document. A business
// rule, not a configuration knob.
const MaxTagsPerDocument = 10

const maxTagLength = 50

// normalized tag names: a-z 0-9 - _
var tagNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,49}$`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses whitespace runs to a single
// hyphen, then validates the result. Normalize is idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(raw))
	n = whitespaceRun.ReplaceAllString(n, "-")

	if n == "" {
		return "", apperrors.ErrValidation(nil).WithMessage("Tag name must not be blank")
	}
	if len(n) > maxTagLength {
		return "", apperrors.ErrValidation(nil).WithMessage(fmt.Sprintf("Tag name too long (max %d)", maxTagLength))
	}
	if !tagNamePattern.MatchString(n) {
		return "", apperrors.ErrValidation(nil).WithMessage(
			fmt.Sprintf("Invalid tag name %q. Allowed: a-z 0-9 '-' '_' (spaces become '-')", raw))
	}
	return n, nil
}
