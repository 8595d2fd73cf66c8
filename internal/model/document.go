package model

// Role names one uploadable document slot.
type Role string

const (
	RolePhoto                Role = "photo"
	RoleSignature            Role = "signature"
	RoleCommunityCertificate Role = "community_certificate"
	RoleAadharCard           Role = "aadhar_card"
	RoleTransferCertificate  Role = "transfer_certificate"

	RoleMarksheetSSLC       Role = "sslc_marksheet"
	RoleMarksheetHSC        Role = "hsc_marksheet"
	RoleMarksheetAdditional Role = "additional_marksheet"
)

// DocumentRoles are the five slots the Documents stage requires.
var DocumentRoles = []Role{
	RolePhoto,
	RoleSignature,
	RoleCommunityCertificate,
	RoleAadharCard,
	RoleTransferCertificate,
}

// MarksheetRoles are owned by the three qualification slots.
var MarksheetRoles = []Role{RoleMarksheetSSLC, RoleMarksheetHSC, RoleMarksheetAdditional}

// AllRoles lists every slot the asset manager tracks.
func AllRoles() []Role {
	out := make([]Role, 0, len(DocumentRoles)+len(MarksheetRoles))
	out = append(out, DocumentRoles...)
	return append(out, MarksheetRoles...)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if known == r {
			return true
		}
	}
	return false
}

// IsMarksheet reports whether r belongs to a qualification record.
func (r Role) IsMarksheet() bool {
	for _, m := range MarksheetRoles {
		if m == r {
			return true
		}
	}
	return false
}

// AssetStatus tracks one slot through selection and upload.
type AssetStatus string

const (
	AssetEmpty     AssetStatus = "empty"
	AssetSelected  AssetStatus = "selected"
	AssetUploading AssetStatus = "uploading"
	AssetUploaded  AssetStatus = "uploaded"
	AssetError     AssetStatus = "error"
)

// DocumentAsset is the client-side state of one slot. RemoteURL is only set
// while Status is AssetUploaded.
type DocumentAsset struct {
	Role      Role        `json:"role"`
	FileName  string      `json:"file_name,omitempty"`
	Mime      string      `json:"mime,omitempty"`
	SizeBytes int64       `json:"size_bytes"`
	Status    AssetStatus `json:"status"`
	RemoteURL string      `json:"remote_url,omitempty"`
	// Preview holds a JPEG thumbnail for image uploads.
	Preview []byte `json:"-"`
	Message string `json:"message,omitempty"`
}
