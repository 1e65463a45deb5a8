package model

// DegreesQuery narrows the degree listing.
type DegreesQuery struct {
	Lang string `form:"lang" binding:"omitempty,oneof=pt-PT en-GB"`
	Term string `form:"term"`
}

// OfferingsQuery selects and filters a degree's offerings. Lang, Term and
// Acronym default to the saved preferences.
type OfferingsQuery struct {
	Lang     string   `form:"lang" binding:"omitempty,oneof=pt-PT en-GB"`
	Term     string   `form:"term"`
	Acronym  string   `form:"acronym"`
	Semester Semester `form:"semester" binding:"omitempty,oneof=1 2"`
	Period   Period   `form:"period" binding:"omitempty,oneof=P1 P2 P3 P4"`
	Campus   string   `form:"campus"`
	Q        string   `form:"q"`
}
