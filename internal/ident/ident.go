// Package ident validates knowledge-graph identifiers before they are sent
// to the remote editing or query services. Entity ids look like "Q42",
// property ids like "P31": a single prefix letter followed by one to five
// digits.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wikicampus/wikicampus/internal/common"
)

var idPattern = regexp.MustCompile(`^[PQ][0-9]{1,5}$`)

// IsEntityID reports whether s is a well-formed entity id ("Q" + 1-5 digits).
func IsEntityID(s string) bool {
	return idPattern.MatchString(s) && s[0] == 'Q'
}

// IsPropertyID reports whether s is a well-formed property id ("P" + 1-5 digits).
func IsPropertyID(s string) bool {
	return idPattern.MatchString(s) && s[0] == 'P'
}

// ValidateEntityID returns a validation error unless s is a well-formed
// entity id.
func ValidateEntityID(s string) error {
	if !IsEntityID(s) {
		return fmt.Errorf("%w: malformed entity id %q", common.ErrorValidation, s)
	}
	return nil
}

// EntityIDFromGUID extracts the entity a statement GUID belongs to.
// Statement GUIDs have the form "<entityID>$<suffix>"; the prefix names the
// entity the statement lives on. Returns "" when the prefix is not a
// well-formed entity id.
func EntityIDFromGUID(guid string) string {
	id, _, ok := strings.Cut(guid, "$")
	if !ok || !IsEntityID(id) {
		return ""
	}
	return id
}

// ValidatePropertyID returns a validation error unless s is a well-formed
// property id.
func ValidatePropertyID(s string) error {
	if !IsPropertyID(s) {
		return fmt.Errorf("%w: malformed property id %q", common.ErrorValidation, s)
	}
	return nil
}
