package model

import "strconv"

// QualificationSlot is one of the three fixed qualification records.
type QualificationSlot string

const (
	SlotSSLC       QualificationSlot = "sslc"
	SlotHSC        QualificationSlot = "hsc"
	SlotAdditional QualificationSlot = "additional"
)

// QualificationSlots in display order.
var QualificationSlots = []QualificationSlot{SlotSSLC, SlotHSC, SlotAdditional}

// FixedCourse returns the course name pinned to the two fixed slots.
func (s QualificationSlot) FixedCourse() (string, bool) {
	switch s {
	case SlotSSLC:
		return "S.S.L.C", true
	case SlotHSC:
		return "HSC", true
	}
	return "", false
}

// AwardingBodyField is "board" for school slots and "university" for the
// additional slot.
func (s QualificationSlot) AwardingBodyField() string {
	if s == SlotAdditional {
		return "university"
	}
	return "board"
}

// OtherBodyField is the awarding-body field that must stay empty for s.
func (s QualificationSlot) OtherBodyField() string {
	if s == SlotAdditional {
		return "board"
	}
	return "university"
}

// MarksheetRole maps a slot to its marksheet document.
func (s QualificationSlot) MarksheetRole() Role {
	switch s {
	case SlotSSLC:
		return RoleMarksheetSSLC
	case SlotHSC:
		return RoleMarksheetHSC
	}
	return RoleMarksheetAdditional
}

// Key builds the stage field name of one attribute of this slot.
func (s QualificationSlot) Key(attr string) string { return string(s) + "." + attr }

// QualificationAttrs are required for every slot, in addition to the awarding
// body field.
var QualificationAttrs = []string{
	"course", "institute_name", "subject_studied", "reg_no",
	"percentage", "month_year", "mode_of_study",
}

// QualificationRecord is the typed view of one slot.
type QualificationRecord struct {
	Slot           QualificationSlot `json:"slot"`
	Course         string            `json:"course"`
	InstituteName  string            `json:"institute_name"`
	Board          string            `json:"board,omitempty"`
	University     string            `json:"university,omitempty"`
	SubjectStudied string            `json:"subject_studied"`
	RegNo          string            `json:"reg_no"`
	Percentage     float64           `json:"percentage"`
	MonthYear      string            `json:"month_year"`
	ModeOfStudy    string            `json:"mode_of_study"`
	MarksheetURL   string            `json:"marksheet_url,omitempty"`
}

// QualificationsFrom projects the Qualifications stage fields into records.
// Percentages that do not parse are left at zero; the validator reports them.
func QualificationsFrom(f Fields, docs map[Role]string) []QualificationRecord {
	out := make([]QualificationRecord, 0, len(QualificationSlots))
	for _, slot := range QualificationSlots {
		rec := QualificationRecord{
			Slot:           slot,
			Course:         f.Get(slot.Key("course")),
			InstituteName:  f.Get(slot.Key("institute_name")),
			Board:          f.Get(slot.Key("board")),
			University:     f.Get(slot.Key("university")),
			SubjectStudied: f.Get(slot.Key("subject_studied")),
			RegNo:          f.Get(slot.Key("reg_no")),
			MonthYear:      f.Get(slot.Key("month_year")),
			ModeOfStudy:    f.Get(slot.Key("mode_of_study")),
			MarksheetURL:   docs[slot.MarksheetRole()],
		}
		if p, err := strconv.ParseFloat(f.Get(slot.Key("percentage")), 64); err == nil {
			rec.Percentage = p
		}
		out = append(out, rec)
	}
	return out
}
