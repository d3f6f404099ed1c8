package models

// RawCaseNumbers holds the reference numbers exactly as the extraction
// collaborator produced them, in heterogeneous source formats.
type RawCaseNumbers struct {
	CourtNumber       string `json:"court_number,omitempty"`
	ProsecutionNumber string `json:"prosecution_number,omitempty"`
	PoliceNumber      string `json:"police_number,omitempty"`
	InternalNumber    string `json:"internal_number,omitempty"`
}

// Party is a person or organization mentioned in a document.
type Party struct {
	PersonalID  *string `json:"personal_id,omitempty"`
	NameAr      string  `json:"name_ar,omitempty"`
	NameEn      string  `json:"name_en,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Role        string  `json:"role,omitempty"` // accused, victim, witness, ...
}

// Charge is a legal charge mentioned in a document.
type Charge struct {
	ArticleNumber *string `json:"article_number,omitempty"`
	DescriptionAr string  `json:"description_ar,omitempty"`
	DescriptionEn string  `json:"description_en,omitempty"`
	LawReference  *string `json:"law_reference,omitempty"`
	Status        string  `json:"status,omitempty"` // pending, dismissed, acquitted, convicted
}

// Evidence is an evidence item mentioned in a document.
type Evidence struct {
	Type          string `json:"type,omitempty"`
	DescriptionAr string `json:"description_ar,omitempty"`
	DescriptionEn string `json:"description_en,omitempty"`
}

// ExtractedDocument is the structured entity set produced per document by the
// external extraction and embedding collaborators. It is the unit of work for
// the resolution pipeline.
type ExtractedDocument struct {
	DocumentID   string         `json:"document_id" validate:"required"`
	DocumentType string         `json:"document_type" validate:"required"`
	CaseNumbers  RawCaseNumbers `json:"case_numbers"`
	Parties      []Party        `json:"parties,omitempty"`
	Charges      []Charge       `json:"charges,omitempty"`
	Evidence     []Evidence     `json:"evidence,omitempty"`
	Embedding    []float64      `json:"embedding,omitempty"`
}
