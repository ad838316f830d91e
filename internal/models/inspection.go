package models

import "time"

// ServiceCategory is the closed set of recognized service groupings
type ServiceCategory string

const (
	CategoryResidential ServiceCategory = "residential"
	CategoryCommercial  ServiceCategory = "commercial"
	CategoryRadon       ServiceCategory = "radon"
	CategoryTermite     ServiceCategory = "termite"
	CategoryMold        ServiceCategory = "mold"
	CategorySewer       ServiceCategory = "sewer"
)

// ServiceCategories lists every recognized service category
var ServiceCategories = []ServiceCategory{
	CategoryResidential,
	CategoryCommercial,
	CategoryRadon,
	CategoryTermite,
	CategoryMold,
	CategorySewer,
}

// IsValid reports whether the service category is recognized
func (c ServiceCategory) IsValid() bool {
	for _, known := range ServiceCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Addon is an optional extra attached to a service
type Addon struct {
	Name  string  `json:"name"`
	Price float64 `json:"price,omitempty"`
}

// Service is a company-defined inspection service offering
type Service struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Name      string          `json:"name"`
	Category  ServiceCategory `json:"category,omitempty"`
	Addons    []Addon         `json:"addons,omitempty"`
}

// Category is a company-defined tag applied to people and actions
type Category struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

// Company owns actions, services and categories. The timezone governs
// business-hour and weekend gating for its triggers.
type Company struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Timezone      string    `json:"timezone"` // IANA zone name, e.g. "America/Chicago"
	APISecretHash string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// InspectionService is a service entry on an inspection, with the add-ons
// actually booked for it
type InspectionService struct {
	ServiceID string          `json:"service_id"`
	Name      string          `json:"name"`
	Category  ServiceCategory `json:"category,omitempty"`
	Addons    []Addon         `json:"addons,omitempty"`
}

// ContactRole distinguishes the people linked to an inspection
type ContactRole string

const (
	RoleClient       ContactRole = "client"
	RoleAgent        ContactRole = "agent"
	RoleListingAgent ContactRole = "listing_agent"
)

// InspectionContact is a person linked to an inspection together with the
// company category tags they carry
type InspectionContact struct {
	Role        ContactRole `json:"role"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email,omitempty"`
	CategoryIDs []string    `json:"category_ids,omitempty"`
}

// Inspection is the fact base triggers are evaluated against. The engine
// treats it as read-only except for the embedded Triggers array and relies
// on Date as the anchor for date-relative scheduling. A nil Date means
// date-relative triggers are never due until one is assigned.
type Inspection struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	Address   string     `json:"address,omitempty"`
	Date      *time.Time `json:"date,omitempty"`

	Services   []InspectionService `json:"services,omitempty"`
	Contacts   []InspectionContact `json:"contacts,omitempty"`
	Attributes map[string]string   `json:"attributes,omitempty"`

	Triggers []Trigger `json:"triggers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerByID returns the embedded trigger with the given id, or nil
func (i *Inspection) TriggerByID(id string) *Trigger {
	for idx := range i.Triggers {
		if i.Triggers[idx].ID == id {
			return &i.Triggers[idx]
		}
	}
	return nil
}

// HasActionTrigger reports whether a trigger for the action is already attached
func (i *Inspection) HasActionTrigger(actionID string) bool {
	for idx := range i.Triggers {
		if i.Triggers[idx].ActionID == actionID {
			return true
		}
	}
	return false
}
