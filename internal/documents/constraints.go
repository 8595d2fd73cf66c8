package documents

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

const (
	MimeJPEG = "image/jpeg"
	MimePDF  = "application/pdf"
)

// Constraint is the selection-time rule for one role.
type Constraint struct {
	Mimes    []string
	MaxBytes int64
}

var constraints = map[model.Role]Constraint{
	model.RolePhoto:                {Mimes: []string{MimeJPEG}, MaxBytes: 30 << 10},
	model.RoleSignature:            {Mimes: []string{MimeJPEG}, MaxBytes: 20 << 10},
	model.RoleCommunityCertificate: {Mimes: []string{MimeJPEG, MimePDF}, MaxBytes: 300 << 10},
	model.RoleAadharCard:           {Mimes: []string{MimeJPEG, MimePDF}, MaxBytes: 300 << 10},
	model.RoleTransferCertificate:  {Mimes: []string{MimeJPEG, MimePDF}, MaxBytes: 300 << 10},
	model.RoleMarksheetSSLC:        {Mimes: []string{MimePDF}, MaxBytes: 2 << 20},
	model.RoleMarksheetHSC:         {Mimes: []string{MimePDF}, MaxBytes: 2 << 20},
	model.RoleMarksheetAdditional:  {Mimes: []string{MimePDF}, MaxBytes: 2 << 20},
}

// ConstraintFor returns the rule for role.
func ConstraintFor(role model.Role) (Constraint, bool) {
	c, ok := constraints[role]
	return c, ok
}

// Check sniffs data and tests it against the role's table entry. The
// returned mime is the detected type, never a declared one.
func Check(role model.Role, data []byte) (string, error) {
	c, ok := constraints[role]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	detected := mimetype.Detect(data)
	size := int64(len(data))
	if size == 0 {
		return detected.String(), &ConstraintError{Role: role, Reason: "file is empty", Mime: detected.String()}
	}
	if !c.allows(detected) {
		return detected.String(), &ConstraintError{
			Role:   role,
			Reason: fmt.Sprintf("type %s is not allowed", detected.String()),
			Mime:   detected.String(),
			Size:   size,
		}
	}
	if size > c.MaxBytes {
		return detected.String(), &ConstraintError{
			Role:   role,
			Reason: fmt.Sprintf("file is %d bytes, limit is %d", size, c.MaxBytes),
			Mime:   detected.String(),
			Size:   size,
		}
	}
	return normalized(detected), nil
}

func (c Constraint) allows(m *mimetype.MIME) bool {
	for _, allowed := range c.Mimes {
		if m.Is(allowed) {
			return true
		}
	}
	return false
}

// normalized drops any parameters mimetype attaches.
func normalized(m *mimetype.MIME) string {
	for _, known := range []string{MimeJPEG, MimePDF} {
		if m.Is(known) {
			return known
		}
	}
	return m.String()
}
