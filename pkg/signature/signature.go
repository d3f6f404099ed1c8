// Package signature derives deduplication signatures for extracted entities.
// Each entity type has a fallback chain from its strongest available
// identifier down to weaker ones; the chain picks the first non-empty rung.
// An entity with no usable identifier has no signature and is skipped.
package signature

import (
	"strings"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/normalizers"
)

// Party returns a party's signature: stable personal ID, then normalized
// Arabic name, then normalized English name.
func Party(p models.Party) (string, bool) {
	if p.PersonalID != nil {
		if id := strings.TrimSpace(*p.PersonalID); id != "" {
			return "id:" + id, true
		}
	}
	if name := normalizers.NormalizeName(p.NameAr); name != "" {
		return "ar:" + name, true
	}
	if name := normalizers.NormalizeName(p.NameEn); name != "" {
		return "en:" + name, true
	}
	return "", false
}

// Charge returns a charge's signature: article number, then normalized Arabic
// description, then normalized English description.
func Charge(c models.Charge) (string, bool) {
	if c.ArticleNumber != nil {
		if art := strings.TrimSpace(*c.ArticleNumber); art != "" {
			return "art:" + art, true
		}
	}
	if desc := normalizers.NormalizeName(c.DescriptionAr); desc != "" {
		return "desc_ar:" + desc, true
	}
	if desc := normalizers.NormalizeName(c.DescriptionEn); desc != "" {
		return "desc_en:" + desc, true
	}
	return "", false
}

// Evidence returns an evidence item's signature: type paired with a
// description when both exist, otherwise the description alone.
func Evidence(e models.Evidence) (string, bool) {
	evType := normalizers.NormalizeName(e.Type)
	descAr := normalizers.NormalizeName(e.DescriptionAr)
	descEn := normalizers.NormalizeName(e.DescriptionEn)

	switch {
	case evType != "" && descAr != "":
		return evType + ":" + descAr, true
	case evType != "" && descEn != "":
		return evType + ":" + descEn, true
	case descAr != "":
		return "desc_ar:" + descAr, true
	case descEn != "":
		return "desc_en:" + descEn, true
	}
	return "", false
}

// DisplayName picks the human-facing label stored alongside a signature.
func DisplayName(primary, fallback string) string {
	if v := strings.TrimSpace(primary); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}
