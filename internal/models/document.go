package models

// PageImage is one prepared page of an uploaded answer sheet: the normalized
// JPEG raster plus whatever native text recognition produced for it. Pages
// are ephemeral and never persisted.
type PageImage struct {
	Index      int    `json:"index"` // 0-based position in the document
	JPEG       []byte `json:"-"`
	NativeText string `json:"-"`
}

// HasNativeText reports whether text recognition yielded usable content for
// the page (pages below the density threshold are treated as pure scans)
func (p *PageImage) HasNativeText() bool {
	return p.NativeText != ""
}

// PageIdentity is the outcome of an identify-only pass over one page: who
// the page seems to belong to, without any answer analysis
type PageIdentity struct {
	PageIndex      int    `json:"page_index"`
	Name           string `json:"name,omitempty"`
	Registration   string `json:"registration,omitempty"`
	StartsNewSheet bool   `json:"starts_new_sheet,omitempty"` // page shows the test restarting at question 1
}

// PageGroup is a contiguous run of pages attributed to one student. Student
// stays nil when no roster entry matched; the group is still gradable and the
// detected header fields are kept for manual linking.
type PageGroup struct {
	Pages                []PageImage    `json:"pages"`
	Student              *StudentRecord `json:"student,omitempty"`
	DetectedName         string         `json:"detected_name,omitempty"`
	DetectedRegistration string         `json:"detected_registration,omitempty"`
	MatchConfidence      float64        `json:"match_confidence"`
}

// DisplayName returns the best available name for reporting: the matched
// roster name, else the raw detected header text
func (g *PageGroup) DisplayName() string {
	if g.Student != nil {
		return g.Student.Name
	}
	return g.DetectedName
}
