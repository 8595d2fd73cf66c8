// Package model contains the struct definitions shared by the admission core,
// the REST client and the API server.
package model

import "fmt"

// Stage identifies one step of the application wizard. The key is stable and
// independent of any URL, so it can be persisted and compared across reloads.
type Stage string

const (
	StageBasicInfo       Stage = "basic_info"
	StagePersonalDetails Stage = "personal_details"
	StageQualifications  Stage = "qualifications"
	StageDocuments       Stage = "documents"
	StagePreview         Stage = "preview"
	StagePayment         Stage = "payment"
	StageSubmitted       Stage = "submitted"
)

// stageOrder is the only legal progression; there is no skipping.
var stageOrder = []Stage{
	StageBasicInfo,
	StagePersonalDetails,
	StageQualifications,
	StageDocuments,
	StagePreview,
	StagePayment,
	StageSubmitted,
}

// Stages returns the stages in progression order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a wire key into a Stage.
func ParseStage(key string) (Stage, error) {
	s := Stage(key)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", key)
	}
	return s, nil
}

// Index returns the position of s in the progression or -1 for unknown keys.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Next returns the stage after s. ok is false for Submitted and unknown keys.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.Index()
	if i < 0 || i == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[i+1], true
}

// Before reports whether s comes strictly earlier than other.
func (s Stage) Before(other Stage) bool {
	return s.Index() >= 0 && s.Index() < other.Index()
}

// Later returns whichever of a and b is further along.
func Later(a, b Stage) Stage {
	if a.Before(b) {
		return b
	}
	return a
}

// Editable reports whether the stage carries an applicant-editable field set.
func (s Stage) Editable() bool {
	switch s {
	case StageBasicInfo, StagePersonalDetails, StageQualifications, StageDocuments, StagePreview:
		return true
	}
	return false
}
