package references

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/laurel/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.RawCaseNumbers
		expected models.ReferenceSet
	}{
		{
			name: "all four present",
			raw: models.RawCaseNumbers{
				CourtNumber:       "123/2024",
				ProsecutionNumber: "P-55/2024",
				PoliceNumber:      "R-9/2024",
				InternalNumber:    "INT-4",
			},
			expected: models.ReferenceSet{
				Court:       strPtr("123/2024"),
				Prosecution: strPtr("p-55/2024"),
				Police:      strPtr("r-9/2024"),
				Internal:    strPtr("int-4"),
			},
		},
		{
			name:     "all empty",
			raw:      models.RawCaseNumbers{},
			expected: models.ReferenceSet{},
		},
		{
			name: "whitespace only collapses to nil",
			raw: models.RawCaseNumbers{
				CourtNumber: "   \t ",
			},
			expected: models.ReferenceSet{},
		},
		{
			name: "internal whitespace collapsed",
			raw: models.RawCaseNumbers{
				CourtNumber: "  123 /  2024 ",
			},
			expected: models.ReferenceSet{
				Court: strPtr("123 / 2024"),
			},
		},
		{
			name: "arabic diacritics stripped",
			raw: models.RawCaseNumbers{
				ProsecutionNumber: "قَضِيَّة 55/2024",
			},
			expected: models.ReferenceSet{
				Prosecution: strPtr("قضيه 55/2024"),
			},
		},
		{
			name: "alif variants folded",
			raw: models.RawCaseNumbers{
				PoliceNumber: "أمن 12/2024",
			},
			expected: models.ReferenceSet{
				Police: strPtr("امن 12/2024"),
			},
		},
		{
			name: "partial set keeps only present fields",
			raw: models.RawCaseNumbers{
				CourtNumber:  "C-1",
				PoliceNumber: "R-1",
			},
			expected: models.ReferenceSet{
				Court:  strPtr("c-1"),
				Police: strPtr("r-1"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeIsPure(t *testing.T) {
	raw := models.RawCaseNumbers{CourtNumber: "Case 123/2024"}
	first := Normalize(raw)
	second := Normalize(raw)
	assert.Equal(t, first, second)
	assert.Equal(t, "case 123/2024", *first.Court)
}

func TestNormalizeSegmentOrderPreserved(t *testing.T) {
	a := Normalize(models.RawCaseNumbers{CourtNumber: "123/2024"})
	b := Normalize(models.RawCaseNumbers{CourtNumber: "2024/123"})
	assert.NotEqual(t, *a.Court, *b.Court)
}

func TestCompleteness(t *testing.T) {
	set := Normalize(models.RawCaseNumbers{
		CourtNumber:  "C-1",
		PoliceNumber: "R-1",
	})
	assert.Equal(t, 2, set.Completeness())
	assert.False(t, set.IsEmpty())

	empty := Normalize(models.RawCaseNumbers{})
	assert.Equal(t, 0, empty.Completeness())
	assert.True(t, empty.IsEmpty())
}
