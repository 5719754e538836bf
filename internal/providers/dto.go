package providers

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/servicelink/servicelink-backend/internal/contactreveal"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// ProfileDTO is the public view of a provider. Contact fields are masked unless
// the viewer is entitled to see them.
type ProfileDTO struct {
	ID                uuid.UUID              `json:"id"`
	UserID            uuid.UUID              `json:"user_id"`
	BusinessName      string                 `json:"business_name"`
	Bio               *string                `json:"bio,omitempty"`
	Location          *string                `json:"location,omitempty"`
	ServiceAreas      []string               `json:"service_areas"`
	ContactEmail      *string                `json:"contact_email,omitempty"`
	ContactPhone      *string                `json:"contact_phone,omitempty"`
	ContactMasked     bool                   `json:"contact_masked"`
	AutoRevealContact bool                   `json:"auto_reveal_contact"`
	SubscriptionTier  enums.SubscriptionTier `json:"subscription_tier"`
	CreatedAt         time.Time              `json:"created_at"`
}

// CreateProfileDTO holds the fields a user supplies when becoming a provider.
type CreateProfileDTO struct {
	UserID            uuid.UUID
	BusinessName      string
	Bio               *string
	Location          *string
	ServiceAreas      []string
	ContactEmail      *string
	ContactPhone      *string
	AutoRevealContact *bool
}

// UpdateProfileDTO carries a partial profile edit. Nil fields stay unchanged;
// an empty string clears an optional field.
type UpdateProfileDTO struct {
	BusinessName      *string
	Bio               *string
	Location          *string
	ServiceAreas      []string
	ContactEmail      *string
	ContactPhone      *string
	AutoRevealContact *bool
}

// Columns maps the edit onto profile columns.
func (u UpdateProfileDTO) Columns() map[string]any {
	cols := map[string]any{}
	optional := func(column string, v *string) {
		if v == nil {
			return
		}
		if trimmed := strings.TrimSpace(*v); trimmed != "" {
			cols[column] = trimmed
		} else {
			cols[column] = nil
		}
	}
	if u.BusinessName != nil {
		cols["business_name"] = strings.TrimSpace(*u.BusinessName)
	}
	optional("bio", u.Bio)
	optional("location", u.Location)
	optional("contact_email", u.ContactEmail)
	optional("contact_phone", u.ContactPhone)
	if u.ServiceAreas != nil {
		cols["service_areas"] = pq.StringArray(append([]string{}, u.ServiceAreas...))
	}
	if u.AutoRevealContact != nil {
		cols["auto_reveal_contact"] = *u.AutoRevealContact
	}
	return cols
}

// FromModel maps the profile, masking contact details when reveal is false.
func FromModel(m *models.ProviderProfile, reveal bool) *ProfileDTO {
	if m == nil {
		return nil
	}
	dto := &ProfileDTO{
		ID:                m.ID,
		UserID:            m.UserID,
		BusinessName:      m.BusinessName,
		Bio:               m.Bio,
		Location:          m.Location,
		ServiceAreas:      append([]string{}, m.ServiceAreas...),
		AutoRevealContact: m.AutoRevealContact,
		SubscriptionTier:  m.SubscriptionTier,
		CreatedAt:         m.CreatedAt,
	}
	info := contactreveal.ContactInfo{Email: m.ContactEmail, Phone: m.ContactPhone}
	if !reveal {
		info = contactreveal.MaskContactInfo(info)
		dto.ContactMasked = true
	}
	dto.ContactEmail = info.Email
	dto.ContactPhone = info.Phone
	return dto
}

// ToModel prepares a FREE-tier profile whose usage window starts now.
func (c CreateProfileDTO) ToModel(now time.Time) *models.ProviderProfile {
	model := &models.ProviderProfile{
		ID:                    uuid.New(),
		UserID:                c.UserID,
		BusinessName:          c.BusinessName,
		Bio:                   c.Bio,
		Location:              c.Location,
		ServiceAreas:          pq.StringArray(append([]string{}, c.ServiceAreas...)),
		ContactEmail:          c.ContactEmail,
		ContactPhone:          c.ContactPhone,
		AutoRevealContact:     true,
		SubscriptionTier:      enums.SubscriptionTierFree,
		MonthlyBookingCount:   0,
		UsageWindowStart:      now.UTC(),
		BookingCountResetDate: now.UTC().AddDate(0, 1, 0),
	}
	if c.AutoRevealContact != nil {
		model.AutoRevealContact = *c.AutoRevealContact
	}
	return model
}
