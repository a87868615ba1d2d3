package domain

import "time"

type AuditAction string

const (
	ActionRequestCreated   AuditAction = "request.created"
	ActionRequestApproved  AuditAction = "request.approved"
	ActionRequestRejected  AuditAction = "request.rejected"
	ActionRequestCancelled AuditAction = "request.cancelled"

	ActionLicenseGranted     AuditAction = "license.granted"
	ActionLicenseRevoked     AuditAction = "license.revoked"
	ActionLicenseReturned    AuditAction = "license.returned"
	ActionLicenseSuspended   AuditAction = "license.suspended"
	ActionLicenseReactivated AuditAction = "license.reactivated"
	ActionLicenseExpired     AuditAction = "license.expired"

	ActionSoftwareCreated AuditAction = "software.created"
	ActionSoftwareUpdated AuditAction = "software.updated"
	ActionSoftwareDeleted AuditAction = "software.deleted"

	ActionUserRegistered AuditAction = "user.registered"
	ActionUserCreated    AuditAction = "user.created"
	ActionUserUpdated    AuditAction = "user.updated"
	ActionUserDeleted    AuditAction = "user.deleted"
)

// AuditEntry — запись журнала действий организации.
type AuditEntry struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	ActorID        *string        `json:"actorId"` // nil для системных действий (sweeper)
	Action         AuditAction    `json:"action"`
	ResourceType   string         `json:"resourceType"`
	ResourceID     string         `json:"resourceId"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RequestID      string         `json:"requestId,omitempty"` // X-Request-Id исходного HTTP запроса
	CreatedAt      time.Time      `json:"createdAt"`
}

type AuditFilter struct {
	OrganizationID string
	Action         string
}
