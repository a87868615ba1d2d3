package notify

import (
	"time"

	"github.com/xela07ax/omnisme/internal/domain"
)

// DecisionEvent — уведомление о смене статуса заявки на лицензию.
type DecisionEvent struct {
	Type           domain.AuditAction   `json:"type"`
	OrganizationID string               `json:"organizationId"`
	RequestID      string               `json:"requestId"`
	Status         domain.RequestStatus `json:"status"`
	RequesterID    string               `json:"requesterId"`
	SoftwareID     string               `json:"softwareId"`
	SoftwareName   string               `json:"softwareName,omitempty"`
	DecidedBy      string               `json:"decidedBy"`
	Comments       *string              `json:"comments,omitempty"`
	LicenseID      *string              `json:"licenseId,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

// NewDecisionEvent собирает событие из итога транзакции.
func NewDecisionEvent(action domain.AuditAction, req *domain.Request, decidedBy string, comments *string, license *domain.License) DecisionEvent {
	ev := DecisionEvent{
		Type:           action,
		OrganizationID: req.OrganizationID,
		RequestID:      req.ID,
		Status:         req.Status,
		RequesterID:    req.UserID,
		SoftwareID:     req.SoftwareID,
		DecidedBy:      decidedBy,
		Comments:       comments,
		OccurredAt:     time.Now().UTC(),
	}
	if req.Software != nil {
		ev.SoftwareName = req.Software.Name
	}
	if license != nil {
		id := license.ID
		ev.LicenseID = &id
	}
	return ev
}
