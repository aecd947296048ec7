package domain

// Mandate statuses.
const (
	MandateOpen       = "open"
	MandateInProgress = "in-progress"
	MandateCompleted  = "completed"
	MandateCancelled  = "cancelled"
	MandateExpired    = "expired"
)

// Candidature statuses.
const (
	CandidatureInterested = "interested"
	CandidatureAccepted   = "accepted"
	CandidatureRejected   = "rejected"
)

// Assignment types.
const (
	AssignmentPublic = "public"
	AssignmentDirect = "direct"
)

type Mandate struct {
	ID             string  `json:"id"`
	AgencyID       string  `json:"agency_id"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	Status         string  `json:"status" enum:"open,in-progress,completed,cancelled,expired"`
	AssignmentType string  `json:"assignment_type" enum:"public,direct"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	City           string  `json:"city,omitempty"`
	DateRequired   string  `json:"date_required,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Assigned reports whether the mandate currently has an investigator.
func (m Mandate) Assigned() bool {
	return m.AssignedTo != nil && *m.AssignedTo != ""
}

// Terminal reports whether the mandate status blocks further assignment.
func (m Mandate) Terminal() bool {
	switch m.Status {
	case MandateCompleted, MandateCancelled, MandateExpired:
		return true
	}
	return false
}

type Candidature struct {
	ID             string `json:"id"`
	MandateID      string `json:"mandate_id"`
	InvestigatorID string `json:"investigator_id"`
	Status         string `json:"status" enum:"interested,accepted,rejected"`
	Message        string `json:"message,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// MandateWithCandidature is the typed shape of the joined read used by the
// candidature operations.
type MandateWithCandidature struct {
	Candidature Candidature `json:"candidature"`
	Mandate     Mandate     `json:"mandate"`
}

type Agency struct {
	ID            string `json:"id"`
	OwnerUserID   string `json:"owner_user_id"`
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number,omitempty"`
	Verified      bool   `json:"verified"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Investigator struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number,omitempty"`
	Verified      bool   `json:"verified"`
	Suspended     bool   `json:"suspended"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	MandateID string `json:"mandate_id,omitempty"`
	Title     string `json:"title,omitempty"`
	ReadAt    string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
