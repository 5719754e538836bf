// Package contactreveal decides who may see a provider's contact details and
// masks them for everyone else.
package contactreveal

import (
	"strings"

	"github.com/google/uuid"
)

// ShouldRevealContact reports whether the public profile may show contact
// details to the viewer. Only the provider sees their own details here. The
// trailing flags (has a confirmed booking, auto-reveal enabled) are accepted
// for callers that track them but do not widen public visibility. Parties to a booking use RevealForBooking.
func ShouldRevealContact(viewerID, providerUserID uuid.UUID, _, _ bool) bool {
	if viewerID == uuid.Nil || providerUserID == uuid.Nil {
		return false
	}
	return viewerID == providerUserID
}

// RevealForBooking governs the booking detail path: a party of the booking
// sees the provider's details once the deposit flow flagged the booking.
func RevealForBooking(viewerIsParty, contactRevealed bool) bool {
	return viewerIsParty && contactRevealed
}

// ContactInfo holds the provider fields subject to masking.
type ContactInfo struct {
	Email *string `json:"contact_email"`
	Phone *string `json:"contact_phone"`
}

// MaskContactInfo returns a copy with email and phone masked; empty fields become nil.
func MaskContactInfo(info ContactInfo) ContactInfo {
	var out ContactInfo
	if info.Email != nil && *info.Email != "" {
		masked := MaskEmail(*info.Email)
		out.Email = &masked
	}
	if info.Phone != nil && *info.Phone != "" {
		masked := MaskPhone(*info.Phone)
		out.Phone = &masked
	}
	return out
}

// MaskEmail keeps the first character and the top-level domain:
// john.doe@example.com becomes j***@***.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) < 2 || parts[1] == "" {
		return "***@***.***"
	}

	username := []rune(parts[0])
	first := ""
	if len(username) > 0 {
		first = string(username[0])
	}
	labels := strings.Split(parts[1], ".")
	return first + "***@***." + labels[len(labels)-1]
}

// MaskPhone keeps the last four characters: +1234567890 becomes ***-***-7890.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	runes := []rune(phone)
	if len(runes) > 4 {
		runes = runes[len(runes)-4:]
	}
	return "***-***-" + string(runes)
}
