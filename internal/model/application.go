package model

import (
	"strings"
	"time"
)

// Fields holds the form values of one stage. Every value travels as a string
// exactly as the applicant typed it; typed interpretation happens in the
// validator and in the snapshot projection.
type Fields map[string]string

// Clone returns an independent copy. A nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the trimmed value for key.
func (f Fields) Get(key string) string {
	return strings.TrimSpace(f[key])
}

// Bool interprets the value for key as a checkbox.
func (f Fields) Bool(key string) bool {
	switch strings.ToLower(f.Get(key)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Equal reports whether both maps carry the same keys and values.
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ApplicationStatus is the coarse lifecycle of an Application.
type ApplicationStatus string

const (
	StatusInProgress ApplicationStatus = "in_progress"
	StatusSubmitted  ApplicationStatus = "submitted"
)

// Referral is the learner support centre attribution captured at signup.
type Referral struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Application is one applicant's admission application for one cycle.
type Application struct {
	ID           string            `json:"application_id"`
	ApplicantID  string            `json:"applicant_id,omitempty"`
	AcademicYear string            `json:"academic_year"`
	Stage        Stage             `json:"stage"`
	Status       ApplicationStatus `json:"status"`
	Fields       map[Stage]Fields  `json:"fields"`
	// Documents maps a role to the remote URL of its confirmed upload.
	Documents map[Role]string `json:"documents,omitempty"`
	Referral  *Referral       `json:"lsc_referral,omitempty"`
	Payment   *PaymentOrder   `json:"payment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StageFields returns a copy of the persisted fields for stage s.
func (a Application) StageFields(s Stage) Fields {
	return a.Fields[s].Clone()
}

// Field names shared by the validator, the controller and the projection.
const (
	FieldModeOfStudy = "mode_of_study"
	FieldProgramme   = "programme"
	FieldCourse      = "course"
	FieldMedium      = "medium"

	FieldParentSelected   = "parent_selected"
	FieldGuardianSelected = "guardian_selected"
	FieldSameAsComm       = "same_as_comm"
	FieldAadhaarNo        = "aadhaar_no"
	FieldDifferentlyAbled = "differently_abled"
	FieldDisabilityType   = "disability_type"
	FieldDOB              = "dob"

	FieldInfoConfirmed = "info_confirmed"
)

// TamilMediumCourse is the one course taught in Tamil; every other course is
// taught in English.
const TamilMediumCourse = "M.A. Tamil"

// MediumFor derives the only medium allowed for a course.
func MediumFor(course string) string {
	if strings.TrimSpace(course) == TamilMediumCourse {
		return "Tamil"
	}
	return "English"
}

// ParentFields are cleared when the guardian option is chosen.
var ParentFields = []string{"father_name", "father_occupation", "mother_name", "mother_occupation"}

// GuardianFields are cleared when the parent option is chosen.
var GuardianFields = []string{"guardian_name", "guardian_occupation"}

// AddressParts lists the suffixes shared by the comm_ and perm_ address blocks.
var AddressParts = []string{"pincode", "district", "state", "country", "town", "area"}

// CommField and PermField name one part of the two address blocks.
func CommField(part string) string { return "comm_" + part }
func PermField(part string) string { return "perm_" + part }

// IsCommField reports whether name belongs to the communication address and
// returns its part suffix.
func IsCommField(name string) (string, bool) {
	part, ok := strings.CutPrefix(name, "comm_")
	return part, ok && contains(AddressParts, part)
}

// IsPermField reports whether name belongs to the permanent address.
func IsPermField(name string) (string, bool) {
	part, ok := strings.CutPrefix(name, "perm_")
	return part, ok && contains(AddressParts, part)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
