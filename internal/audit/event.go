package audit

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/xela07ax/omnisme/internal/domain"
)

// Resource types
const (
	ResourceRequest  = "request"
	ResourceLicense  = "license"
	ResourceSoftware = "software"
	ResourceUser     = "user"
)

// NewEntry собирает запись от имени пользователя. Request ID берется из контекста chi.
func NewEntry(ctx context.Context, actor domain.Principal, action domain.AuditAction, resourceType, resourceID string, meta map[string]any) domain.AuditEntry {
	e := domain.AuditEntry{
		OrganizationID: actor.OrganizationID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Metadata:       meta,
		RequestID:      middleware.GetReqID(ctx),
	}
	if actor.UserID != "" {
		id := actor.UserID
		e.ActorID = &id
	}
	return e
}

// SystemEntry — запись без пользователя (фоновые задачи).
func SystemEntry(organizationID string, action domain.AuditAction, resourceType, resourceID string, meta map[string]any) domain.AuditEntry {
	return domain.AuditEntry{
		OrganizationID: organizationID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Metadata:       meta,
	}
}
