package domain

import (
	"fmt"
	"strings"
	"time"
)

// Статусы State Machine заявки
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown request status %q", ErrInvalidInput, s)
	}
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities перечислены от самого срочного.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority: пустая строка дает MEDIUM.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
}

// Rank задает порядок сортировки очереди: URGENT выше всех.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// MinJustificationLength — минимальная длина обоснования заявки.
const MinJustificationLength = 10

type Request struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	UserID         string        `json:"userId"`
	SoftwareID     string        `json:"softwareId"`
	Justification  string        `json:"justification"`
	Priority       Priority      `json:"priority"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`

	Software  *Software   `json:"software,omitempty"`
	User      *User       `json:"user,omitempty"`
	Approvals []*Approval `json:"approvals,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (r *Request) CanTransitionTo(next RequestStatus) error {
	if r.Status != RequestPending {
		return ErrAlreadyProcessed
	}
	if next == RequestPending {
		return ErrInvalidTransition
	}
	return nil
}

// Decision — решение менеджера по заявке.
type Decision struct {
	OrganizationID string
	RequestID      string
	ApproverID     string
	Status         RequestStatus // APPROVED или REJECTED
	Comments       *string
}

type DecisionResult struct {
	Request  *Request
	Approval *Approval
	License  *License // только для APPROVED
}
