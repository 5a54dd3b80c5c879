package auth

import (
	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleOrganizer   Role = "ORGANIZER"
	RoleParticipant Role = "PARTICIPANT"
	RoleJudge       Role = "JUDGE"
	RoleVolunteer   Role = "VOLUNTEER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RoleParticipant, RoleJudge, RoleVolunteer:
		return true
	}
	return false
}

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessOwned allows the owner of a resource and admins.
func CanAccessOwned(p Principal, ownerID string) error {
	if p.IsAdmin() || p.ID == ownerID {
		return nil
	}
	return apperr.New(apperr.Forbidden, "not allowed to access this resource")
}

// CanActAsOwner allows only the owner, regardless of role.
func CanActAsOwner(p Principal, ownerID string) error {
	if p.ID == ownerID {
		return nil
	}
	return apperr.New(apperr.Forbidden, "only the owner may perform this action")
}

// CanRefund allows admins on any event and organizers on events they run.
func CanRefund(p Principal, event *models.Event) error {
	switch p.Role {
	case RoleAdmin:
		return nil
	case RoleOrganizer:
		if event != nil && event.OrganizerID == p.ID {
			return nil
		}
		return apperr.New(apperr.Forbidden, "organizers may only refund payments for their own events")
	default:
		return apperr.New(apperr.Forbidden, "only admins and organizers may issue refunds")
	}
}

// CanManageCoupons allows admins and organizers.
func CanManageCoupons(p Principal) error {
	if p.Role == RoleAdmin || p.Role == RoleOrganizer {
		return nil
	}
	return apperr.New(apperr.Forbidden, "only admins and organizers may manage coupons")
}
