package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeArabic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"diacritics stripped", "مُحَمَّد", "محمد"},
		{"tatweel stripped", "محـــمد", "محمد"},
		{"alif hamza above folded", "أحمد", "احمد"},
		{"alif hamza below folded", "إبراهيم", "ابراهيم"},
		{"alif madda folded", "آمنة", "امنه"},
		{"alif maqsura folded", "مصطفى", "مصطفي"},
		{"ta marbuta folded", "فاطمة", "فاطمه"},
		{"latin passthrough", "Case 123", "Case 123"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeArabic(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whitespace collapsed and lowered", "  Ahmed   ALI ", "ahmed ali"},
		{"arabic variants folded", "أَحمد  علي", "احمد علي"},
		{"mixed script", "شركة ABC للتجارة", "شركه abc للتجاره"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trim and lowercase", "  CR-123/2024 ", "cr-123/2024"},
		{"internal whitespace collapsed", "123 /   2024", "123 / 2024"},
		{"separators preserved", "123/2024", "123/2024"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeReference(tt.input))
		})
	}
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("nreference")
	assert.True(t, ok)
	assert.Equal(t, "abc", fn(" ABC "))

	_, ok = Get("nonexistent")
	assert.False(t, ok)

	assert.Equal(t, "unchanged", Apply("unchanged", "nonexistent"))
	assert.Equal(t, "a b", ApplyChain("  A   B  ", "collapse_whitespace", "lowercase"))
}
