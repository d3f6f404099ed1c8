// Package normalizers provides field normalization functions for identity
// matching. Arabic-aware normalizers handle the diacritic and letter-variant
// noise typical of extracted legal text.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("narabic", NormalizeArabic)
	Register("nname", NormalizeName)
	Register("nreference", NormalizeReference)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace reduces runs of whitespace to a single space and trims
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// diacriticsRe matches Arabic diacritics (harakat), tatweel, and Quranic
// annotation marks that carry no identity information.
var diacriticsRe = regexp.MustCompile(`[\x{0640}\x{0610}-\x{061A}\x{064B}-\x{065F}\x{0670}\x{06D6}-\x{06ED}]`)

// arabicVariants folds common letter variants to a canonical form:
// alif variants to bare alif, alif maqsura to ya, ta marbuta to ha.
var arabicVariants = strings.NewReplacer(
	"أ", "ا", // أ -> ا
	"إ", "ا", // إ -> ا
	"آ", "ا", // آ -> ا
	"ى", "ي", // ى -> ي
	"ة", "ه", // ة -> ه
)

// NormalizeArabic strips diacritics and tatweel and folds letter variants.
// Non-Arabic characters pass through unchanged.
func NormalizeArabic(s string) string {
	s = diacriticsRe.ReplaceAllString(s, "")
	return arabicVariants.Replace(s)
}

// NormalizeName normalizes a party or description name for matching:
// collapsed whitespace, no diacritics, folded letter variants, lowercase.
// English names and digits embedded in Arabic text are preserved.
func NormalizeName(s string) string {
	s = CollapseWhitespace(s)
	s = NormalizeArabic(s)
	s = CollapseWhitespace(s)
	return strings.ToLower(s)
}

// NormalizeReference canonicalizes a reference number: trimmed, collapsed
// whitespace, diacritics stripped, case-folded. Segment separators are kept
// because reordered segments are distinct references.
func NormalizeReference(s string) string {
	s = CollapseWhitespace(s)
	s = NormalizeArabic(s)
	return strings.ToLower(s)
}
