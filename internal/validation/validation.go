// Package validation holds the per-stage field rules. Validate is a pure
// function: it never performs I/O and never mutates its input.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// Errors maps a field name to a human readable message. An empty map means
// the stage passed.
type Errors map[string]string

// OK reports whether no field failed.
func (e Errors) OK() bool { return len(e) == 0 }

// Error lists the failing fields in a stable order.
func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e Errors) add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// Input is everything a stage rule may look at.
type Input struct {
	Fields model.Fields
	// Assets reports the current status of each document slot. Only the
	// Qualifications and Documents stages read it.
	Assets map[model.Role]model.AssetStatus
}

// ErrNotValidatable is returned for stages that cannot be advanced through
// field validation.
var ErrNotValidatable = errors.New("stage is not advanced through field validation")

var (
	aadhaarPattern   = regexp.MustCompile(`^\d{12}$`)
	pincodePattern   = regexp.MustCompile(`^\d{6}$`)
	monthYearPattern = regexp.MustCompile(`^(\d{2})/(\d{4})$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "aadhaar", func(fl validator.FieldLevel) bool {
		return aadhaarPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "pincode", func(fl validator.FieldLevel) bool {
		return pincodePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "month_year", func(fl validator.FieldLevel) bool {
		return validMonthYear(fl.Field().String())
	})
	mustRegister(v, "isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

func validMonthYear(s string) bool {
	m := monthYearPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	return month >= 1 && month <= 12
}

// Validate runs the rules for stage against in.
func Validate(stage model.Stage, in Input) (Errors, error) {
	errs := Errors{}
	f := in.Fields
	switch stage {
	case model.StageBasicInfo:
		basicInfo(f, errs)
	case model.StagePersonalDetails:
		personalDetails(f, errs)
	case model.StageQualifications:
		qualifications(f, in.Assets, errs)
	case model.StageDocuments:
		documents(in.Assets, errs)
	case model.StagePreview:
		if !f.Bool(model.FieldInfoConfirmed) {
			errs.add(model.FieldInfoConfirmed, "please confirm the information is correct")
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotValidatable, stage)
	}
	return errs, nil
}

// check applies a validator tag to a single field value and records a message
// for the first failing rule.
func check(errs Errors, field, value, tag string) bool {
	err := validate.Var(value, tag)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		errs.add(field, message(field, verrs[0]))
	} else {
		errs.add(field, err.Error())
	}
	return false
}

func message(field string, fe validator.FieldError) string {
	label := strings.ReplaceAll(field, "_", " ")
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "aadhaar":
		return "Aadhaar Number must be exactly 12 digits"
	case "pincode":
		return label + " must be exactly 6 digits"
	case "month_year":
		return "Month & Year must be in MM/YYYY format"
	case "isodate":
		return label + " must be a date in YYYY-MM-DD format"
	case "eq":
		return fmt.Sprintf("%s must be %s", label, fe.Param())
	case "gte", "lte":
		return "Percentage must be a valid number between 0 and 100"
	}
	return fmt.Sprintf("%s is invalid (%s)", label, fe.Tag())
}

func required(f model.Fields, errs Errors, fields ...string) {
	for _, name := range fields {
		check(errs, name, f.Get(name), "required")
	}
}
