package validation

import (
	"strconv"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// PersonalRequired is always required on the PersonalDetails stage.
var PersonalRequired = []string{
	"deb_id", "abc_id", "name_initial", model.FieldDOB, "gender", model.FieldAadhaarNo, "name_as_aadhaar",
	"nationality", "religion", "community", "mother_tongue", model.FieldDifferentlyAbled,
	"blood_group", "access_internet",
	"comm_pincode", "comm_district", "comm_state", "comm_country", "comm_town", "comm_area",
}

func basicInfo(f model.Fields, errs Errors) {
	required(f, errs, model.FieldModeOfStudy, model.FieldProgramme, model.FieldCourse, model.FieldMedium)
	course := f.Get(model.FieldCourse)
	if course == "" || f.Get(model.FieldMedium) == "" {
		return
	}
	check(errs, model.FieldMedium, f.Get(model.FieldMedium), "eq="+model.MediumFor(course))
}

func personalDetails(f model.Fields, errs Errors) {
	required(f, errs, PersonalRequired...)

	if v := f.Get(model.FieldAadhaarNo); v != "" {
		check(errs, model.FieldAadhaarNo, v, "aadhaar")
	}
	if v := f.Get(model.FieldDOB); v != "" {
		check(errs, model.FieldDOB, v, "isodate")
	}
	if v := f.Get("comm_pincode"); v != "" {
		check(errs, "comm_pincode", v, "pincode")
	}

	parent, guardian := f.Bool(model.FieldParentSelected), f.Bool(model.FieldGuardianSelected)
	switch {
	case parent && guardian:
		errs.add(model.FieldGuardianSelected, "choose either parent or guardian details, not both")
	case parent:
		required(f, errs, model.ParentFields...)
	case guardian:
		required(f, errs, model.GuardianFields...)
	default:
		errs.add(model.FieldParentSelected, "parent or guardian details are required")
	}

	if f.Bool(model.FieldSameAsComm) {
		for _, part := range model.AddressParts {
			perm, comm := model.PermField(part), model.CommField(part)
			if f.Get(perm) != f.Get(comm) {
				errs.add(perm, "permanent address must match the communication address")
			}
		}
	} else {
		for _, part := range model.AddressParts {
			required(f, errs, model.PermField(part))
		}
		if v := f.Get("perm_pincode"); v != "" {
			check(errs, "perm_pincode", v, "pincode")
		}
	}

	if f.Get(model.FieldDifferentlyAbled) == "Yes" {
		required(f, errs, model.FieldDisabilityType)
	}
}

func qualifications(f model.Fields, assets map[model.Role]model.AssetStatus, errs Errors) {
	for _, slot := range model.QualificationSlots {
		for _, attr := range model.QualificationAttrs {
			required(f, errs, slot.Key(attr))
		}
		if course, fixed := slot.FixedCourse(); fixed {
			if v := f.Get(slot.Key("course")); v != "" {
				check(errs, slot.Key("course"), v, "eq="+course)
			}
		}

		body, other := slot.Key(slot.AwardingBodyField()), slot.Key(slot.OtherBodyField())
		required(f, errs, body)
		if f.Get(other) != "" {
			errs.add(other, "only "+slot.AwardingBodyField()+" may be given for this qualification")
		}

		if raw := f.Get(slot.Key("percentage")); raw != "" {
			pct, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				errs.add(slot.Key("percentage"), "Percentage must be a valid number between 0 and 100")
			} else if validate.Var(pct, "gte=0,lte=100") != nil {
				errs.add(slot.Key("percentage"), "Percentage must be a valid number between 0 and 100")
			}
		}
		if v := f.Get(slot.Key("month_year")); v != "" {
			check(errs, slot.Key("month_year"), v, "month_year")
		}

		role := slot.MarksheetRole()
		if assets[role] != model.AssetUploaded {
			errs.add(string(role), "marksheet must be uploaded")
		}
	}
}

func documents(assets map[model.Role]model.AssetStatus, errs Errors) {
	for _, role := range model.DocumentRoles {
		if assets[role] != model.AssetUploaded {
			errs.add(string(role), "document must be uploaded")
		}
	}
}
