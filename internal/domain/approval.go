package domain

import "time"

type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// AutoApproveComment — комментарий для заявок на ПО без обязательного согласования.
const AutoApproveComment = "Auto-approved - No approval required"

// Approval — аудиторская запись о решении по заявке.
type Approval struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"requestId"`
	ApproverID *string        `json:"approverId"` // nil, если согласующий удален
	Status     ApprovalStatus `json:"status"`
	Comments   *string        `json:"comments"`
	CreatedAt  time.Time      `json:"createdAt"`

	Approver *UserSummary `json:"approver,omitempty"`
}
