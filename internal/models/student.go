package models

// StudentRecord is a read-only roster entry. The grading service never
// creates or mutates students; it only matches detected header text against
// the roster and records grades keyed by the student ID.
type StudentRecord struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	SectionID          string `json:"section_id,omitempty"`
}
