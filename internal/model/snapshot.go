package model

// ApplicationSnapshot is the read-only projection consumed by preview, print
// and receipt views. It is built once from persisted fields instead of being
// re-merged in every view.
type ApplicationSnapshot struct {
	ApplicationID string                `json:"application_id"`
	AcademicYear  string                `json:"academic_year"`
	Stage         Stage                 `json:"stage"`
	Status        ApplicationStatus     `json:"status"`
	Programme     ProgrammeChoice       `json:"programme"`
	Personal      PersonalDetails       `json:"personal"`
	Qualification []QualificationRecord `json:"qualifications"`
	Documents     map[Role]string       `json:"documents"`
	Referral      *Referral             `json:"lsc_referral,omitempty"`
	Payment       *PaymentOrder         `json:"payment,omitempty"`
	Confirmed     bool                  `json:"info_confirmed"`
}

// ProgrammeChoice is the BasicInfo stage.
type ProgrammeChoice struct {
	ModeOfStudy string `json:"mode_of_study"`
	Programme   string `json:"programme"`
	Course      string `json:"course"`
	Medium      string `json:"medium"`
}

// Address is one of the two address blocks.
type Address struct {
	Pincode  string `json:"pincode"`
	District string `json:"district"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Town     string `json:"town"`
	Area     string `json:"area"`
}

// PersonalDetails is the PersonalDetails stage. Exactly one of Parents and
// Guardian is set.
type PersonalDetails struct {
	DebID            string   `json:"deb_id"`
	AbcID            string   `json:"abc_id"`
	NameInitial      string   `json:"name_initial"`
	DOB              string   `json:"dob"`
	Gender           string   `json:"gender"`
	AadhaarNo        string   `json:"aadhaar_no"`
	NameAsAadhaar    string   `json:"name_as_aadhaar"`
	Parents          *Parents `json:"parents,omitempty"`
	Guardian         *Person  `json:"guardian,omitempty"`
	Nationality      string   `json:"nationality"`
	Religion         string   `json:"religion"`
	Community        string   `json:"community"`
	MotherTongue     string   `json:"mother_tongue"`
	DifferentlyAbled string   `json:"differently_abled"`
	DisabilityType   string   `json:"disability_type,omitempty"`
	BloodGroup       string   `json:"blood_group"`
	AccessInternet   string   `json:"access_internet"`
	Communication    Address  `json:"communication_address"`
	Permanent        Address  `json:"permanent_address"`
	SameAsComm       bool     `json:"same_as_comm"`
}

// Person is a name with an occupation.
type Person struct {
	Name       string `json:"name"`
	Occupation string `json:"occupation"`
}

// Parents groups father and mother.
type Parents struct {
	Father Person `json:"father"`
	Mother Person `json:"mother"`
}

// BuildSnapshot projects an Application into its snapshot.
func BuildSnapshot(app Application) ApplicationSnapshot {
	basic := app.Fields[StageBasicInfo]
	personal := app.Fields[StagePersonalDetails]
	docs := make(map[Role]string, len(app.Documents))
	for role, url := range app.Documents {
		docs[role] = url
	}
	snap := ApplicationSnapshot{
		ApplicationID: app.ID,
		AcademicYear:  app.AcademicYear,
		Stage:         app.Stage,
		Status:        app.Status,
		Programme: ProgrammeChoice{
			ModeOfStudy: basic.Get(FieldModeOfStudy),
			Programme:   basic.Get(FieldProgramme),
			Course:      basic.Get(FieldCourse),
			Medium:      basic.Get(FieldMedium),
		},
		Personal:      personalFrom(personal),
		Qualification: QualificationsFrom(app.Fields[StageQualifications], docs),
		Documents:     docs,
		Referral:      app.Referral,
		Payment:       app.Payment,
		Confirmed:     app.Fields[StagePreview].Bool(FieldInfoConfirmed),
	}
	return snap
}

func personalFrom(f Fields) PersonalDetails {
	p := PersonalDetails{
		DebID:            f.Get("deb_id"),
		AbcID:            f.Get("abc_id"),
		NameInitial:      f.Get("name_initial"),
		DOB:              f.Get(FieldDOB),
		Gender:           f.Get("gender"),
		AadhaarNo:        f.Get(FieldAadhaarNo),
		NameAsAadhaar:    f.Get("name_as_aadhaar"),
		Nationality:      f.Get("nationality"),
		Religion:         f.Get("religion"),
		Community:        f.Get("community"),
		MotherTongue:     f.Get("mother_tongue"),
		DifferentlyAbled: f.Get(FieldDifferentlyAbled),
		DisabilityType:   f.Get(FieldDisabilityType),
		BloodGroup:       f.Get("blood_group"),
		AccessInternet:   f.Get("access_internet"),
		Communication:    addressFrom(f, CommField),
		Permanent:        addressFrom(f, PermField),
		SameAsComm:       f.Bool(FieldSameAsComm),
	}
	if p.SameAsComm {
		p.Permanent = p.Communication
	}
	switch {
	case f.Bool(FieldGuardianSelected):
		p.Guardian = &Person{Name: f.Get("guardian_name"), Occupation: f.Get("guardian_occupation")}
	case f.Bool(FieldParentSelected):
		p.Parents = &Parents{
			Father: Person{Name: f.Get("father_name"), Occupation: f.Get("father_occupation")},
			Mother: Person{Name: f.Get("mother_name"), Occupation: f.Get("mother_occupation")},
		}
	}
	return p
}

func addressFrom(f Fields, name func(string) string) Address {
	return Address{
		Pincode:  f.Get(name("pincode")),
		District: f.Get(name("district")),
		State:    f.Get(name("state")),
		Country:  f.Get(name("country")),
		Town:     f.Get(name("town")),
		Area:     f.Get(name("area")),
	}
}
