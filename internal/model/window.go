package model

import "time"

// AdmissionWindow is the per-cycle record that says whether new applications
// may be started. The core only reads it.
type AdmissionWindow struct {
	AdmissionCode string    `json:"admission_code"`
	AcademicYear  string    `json:"academic_year"`
	IsOpen        bool      `json:"is_open"`
	OpeningDate   time.Time `json:"opening_date"`
	ClosingDate   time.Time `json:"closing_date"`
}

// OpenAt reports whether the window accepts applications at t: the admin
// switch must be on and t must fall within the opening and closing days.
func (w AdmissionWindow) OpenAt(t time.Time) bool {
	if !w.IsOpen {
		return false
	}
	day := truncateDay(t)
	return !day.Before(truncateDay(w.OpeningDate)) && !day.After(truncateDay(w.ClosingDate))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
