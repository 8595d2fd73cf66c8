package stage

import (
	"fmt"
	"strconv"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// applyEdit sets name on f and keeps the derived fields consistent.
func applyEdit(f model.Fields, name, value string) error {
	switch name {
	case model.FieldCourse:
		f[name] = value
		f[model.FieldMedium] = model.MediumFor(value)
		return nil
	case model.FieldMedium:
		if value != model.MediumFor(f.Get(model.FieldCourse)) {
			return fmt.Errorf("%w: %s follows the course", ErrDerivedField, name)
		}
		f[name] = value
		return nil
	case model.FieldGuardianSelected:
		return selectExclusive(f, name, value, model.FieldParentSelected, model.ParentFields)
	case model.FieldParentSelected:
		return selectExclusive(f, name, value, model.FieldGuardianSelected, model.GuardianFields)
	case model.FieldSameAsComm:
		on := truthy(value)
		f[name] = strconv.FormatBool(on)
		if on {
			copyAddress(f)
		}
		return nil
	}
	if part, ok := model.IsCommField(name); ok {
		f[name] = value
		if f.Bool(model.FieldSameAsComm) {
			f[model.PermField(part)] = value
		}
		return nil
	}
	if _, ok := model.IsPermField(name); ok && f.Bool(model.FieldSameAsComm) {
		return fmt.Errorf("%w: %s is copied from the communication address", ErrDerivedField, name)
	}
	f[name] = value
	return nil
}

// selectExclusive turns one of the parent/guardian options on and clears the
// other option together with its fields.
func selectExclusive(f model.Fields, name, value, other string, otherFields []string) error {
	on := truthy(value)
	f[name] = strconv.FormatBool(on)
	if !on {
		return nil
	}
	f[other] = "false"
	for _, field := range otherFields {
		delete(f, field)
	}
	return nil
}

func copyAddress(f model.Fields) {
	for _, part := range model.AddressParts {
		f[model.PermField(part)] = f[model.CommField(part)]
	}
}

// derive recomputes every derived field before validation.
func derive(s model.Stage, f model.Fields) {
	switch s {
	case model.StageBasicInfo:
		if course := f.Get(model.FieldCourse); course != "" {
			f[model.FieldMedium] = model.MediumFor(course)
		}
	case model.StagePersonalDetails:
		if f.Bool(model.FieldSameAsComm) {
			copyAddress(f)
		}
	}
}

func truthy(v string) bool {
	return model.Fields{"v": v}.Bool("v")
}
