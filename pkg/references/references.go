// Package references converts raw extracted case numbers into a canonical
// reference set. Normalization is pure: malformed or empty values become nil
// fields, never errors, so one bad reference cannot block resolution on the
// remaining ones.
package references

import (
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

// Normalize canonicalizes each raw case number independently. A field that is
// empty after normalization maps to nil.
func Normalize(raw models.RawCaseNumbers) models.ReferenceSet {
	var set models.ReferenceSet
	set.Court = normalizeValue(raw.CourtNumber)
	set.Prosecution = normalizeValue(raw.ProsecutionNumber)
	set.Police = normalizeValue(raw.PoliceNumber)
	set.Internal = normalizeValue(raw.InternalNumber)
	return set
}

func normalizeValue(value string) *string {
	normalized := normalizers.NormalizeReference(value)
	if normalized == "" {
		return nil
	}
	return &normalized
}
