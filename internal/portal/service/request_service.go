package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra"
	"github.com/xela07ax/omnisme/internal/notify"
)

type RequestRepository interface {
	GetSoftware(ctx context.Context, orgID, id string) (*domain.Software, error)
	CreateRequest(ctx context.Context, req *domain.Request, autoApprove bool) (*domain.License, error)
	DecideRequest(ctx context.Context, d domain.Decision) (*domain.DecisionResult, error)
	CancelRequest(ctx context.Context, orgID, id, userID string) (*domain.Request, error)
	ListUserRequests(ctx context.Context, orgID, userID string, status *domain.RequestStatus, page domain.PageRequest) ([]*domain.Request, int, error)
	ListPendingRequests(ctx context.Context, orgID string, page domain.PageRequest) ([]*domain.Request, int, error)
}

// DecisionNotifier доставляет события о решениях. Ошибки доставки не возвращает.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, ev notify.DecisionEvent)
}

type CreateRequestInput struct {
	SoftwareID    string
	Justification string
	Priority      string
}

// RequestCreated — ответ на создание заявки: поля заявки плюс лицензия и сообщение.
type RequestCreated struct {
	*domain.Request
	License *domain.License `json:"license,omitempty"`
	Message string          `json:"message"`
}

// RequestService — заявки на лицензии и решения по ним.
type RequestService struct {
	repo     RequestRepository
	notifier DecisionNotifier
	stats    StatsStore
	auditor  audit.Auditor
	metrics  *infra.Metrics
	logger   *zap.Logger
}

func NewRequestService(
	repo RequestRepository,
	notifier DecisionNotifier,
	stats StatsStore,
	auditor audit.Auditor,
	metrics *infra.Metrics,
	logger *zap.Logger,
) *RequestService {
	return &RequestService{
		repo:     repo,
		notifier: notifier,
		stats:    stats,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger.Named("request-service"),
	}
}

// Create сохраняет заявку. ПО без обязательного согласования одобряется сразу,
// заявка, решение и лицензия пишутся одной транзакцией.
func (s *RequestService) Create(ctx context.Context, p domain.Principal, in CreateRequestInput) (*RequestCreated, error) {
	justification := strings.TrimSpace(in.Justification)
	if utf8.RuneCountInString(justification) < domain.MinJustificationLength {
		return nil, domain.E(domain.ErrInvalidInput, "Justification must be at least 10 characters")
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return nil, domain.E(domain.ErrInvalidInput, "Invalid priority")
	}

	sw, err := s.repo.GetSoftware(ctx, p.OrganizationID, in.SoftwareID)
	if err != nil {
		return nil, err
	}

	req := &domain.Request{
		OrganizationID: p.OrganizationID,
		UserID:         p.UserID,
		SoftwareID:     sw.ID,
		Justification:  justification,
		Priority:       priority,
	}
	autoApprove := !sw.RequiresApproval

	license, err := s.repo.CreateRequest(ctx, req, autoApprove)
	if err != nil {
		return nil, err
	}
	req.Software = sw

	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionRequestCreated, audit.ResourceRequest, req.ID,
		map[string]any{"softwareId": sw.ID, "priority": string(priority), "autoApproved": autoApprove}))

	if license == nil {
		s.logger.Info("license request submitted",
			zap.String("request_id", req.ID),
			zap.String("software_id", sw.ID),
			zap.String("priority", string(priority)))
		return &RequestCreated{Request: req, Message: "Request submitted successfully"}, nil
	}

	license.Software = sw
	s.metrics.RequestDecisions.WithLabelValues("auto_approved").Inc()
	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionLicenseGranted, audit.ResourceLicense, license.ID,
		map[string]any{"requestId": req.ID, "softwareId": sw.ID, "userId": p.UserID}))

	comment := domain.AutoApproveComment
	s.notifier.NotifyDecision(ctx, notify.NewDecisionEvent(domain.ActionRequestApproved, req, p.UserID, &comment, license))

	s.logger.Info("license request auto-approved",
		zap.String("request_id", req.ID),
		zap.String("license_id", license.ID))
	return &RequestCreated{
		Request: req,
		License: license,
		Message: "Request auto-approved and license granted",
	}, nil
}

// Approve переводит PENDING -> APPROVED и выдает лицензию.
func (s *RequestService) Approve(ctx context.Context, p domain.Principal, id string, comments *string) (*domain.DecisionResult, error) {
	return s.decide(ctx, p, id, domain.RequestApproved, trimComments(comments))
}

// Reject переводит PENDING -> REJECTED. Комментарий обязателен.
func (s *RequestService) Reject(ctx context.Context, p domain.Principal, id string, comments string) (*domain.DecisionResult, error) {
	c := trimComments(&comments)
	if c == nil {
		return nil, domain.E(domain.ErrInvalidInput, "Comments are required when rejecting a request")
	}
	return s.decide(ctx, p, id, domain.RequestRejected, c)
}

func (s *RequestService) decide(ctx context.Context, p domain.Principal, id string, status domain.RequestStatus, comments *string) (*domain.DecisionResult, error) {
	if !p.Role.CanApprove() {
		return nil, domain.E(domain.ErrForbidden, "Insufficient permissions")
	}

	res, err := s.repo.DecideRequest(ctx, domain.Decision{
		OrganizationID: p.OrganizationID,
		RequestID:      id,
		ApproverID:     p.UserID,
		Status:         status,
		Comments:       comments,
	})
	if err != nil {
		return nil, err
	}

	action, decision := domain.ActionRequestRejected, "rejected"
	if status == domain.RequestApproved {
		action, decision = domain.ActionRequestApproved, "approved"
	}
	s.metrics.RequestDecisions.WithLabelValues(decision).Inc()

	meta := map[string]any{"requesterId": res.Request.UserID, "softwareId": res.Request.SoftwareID}
	if comments != nil {
		meta["comments"] = *comments
	}
	s.auditor.Log(audit.NewEntry(ctx, p, action, audit.ResourceRequest, res.Request.ID, meta))

	if res.License != nil {
		res.License.Software = res.Request.Software
		s.stats.Invalidate(ctx, p.OrganizationID)
		s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionLicenseGranted, audit.ResourceLicense, res.License.ID,
			map[string]any{"requestId": res.Request.ID, "userId": res.Request.UserID}))
	}

	s.notifier.NotifyDecision(ctx, notify.NewDecisionEvent(action, res.Request, p.UserID, comments, res.License))

	s.logger.Info("request decision processed",
		zap.String("request_id", res.Request.ID),
		zap.String("approver", p.UserID),
		zap.String("result", string(status)))
	return res, nil
}

func (s *RequestService) Cancel(ctx context.Context, p domain.Principal, id string) (*domain.Request, error) {
	req, err := s.repo.CancelRequest(ctx, p.OrganizationID, id, p.UserID)
	if err != nil {
		return nil, err
	}

	s.metrics.RequestDecisions.WithLabelValues("cancelled").Inc()
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionRequestCancelled, audit.ResourceRequest, req.ID, nil))
	s.notifier.NotifyDecision(ctx, notify.NewDecisionEvent(domain.ActionRequestCancelled, req, p.UserID, nil, nil))
	return req, nil
}

// MyRequests: пустой status означает без фильтра.
func (s *RequestService) MyRequests(ctx context.Context, p domain.Principal, status string, page domain.PageRequest) (domain.Page[*domain.Request], error) {
	var filter *domain.RequestStatus
	if strings.TrimSpace(status) != "" {
		st, err := domain.ParseRequestStatus(status)
		if err != nil {
			return domain.Page[*domain.Request]{}, domain.E(domain.ErrInvalidInput, "Invalid status")
		}
		filter = &st
	}

	items, total, err := s.repo.ListUserRequests(ctx, p.OrganizationID, p.UserID, filter, page)
	if err != nil {
		return domain.Page[*domain.Request]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

func (s *RequestService) Pending(ctx context.Context, p domain.Principal, page domain.PageRequest) (domain.Page[*domain.Request], error) {
	if !p.Role.CanApprove() {
		return domain.Page[*domain.Request]{}, domain.E(domain.ErrForbidden, "Insufficient permissions")
	}
	items, total, err := s.repo.ListPendingRequests(ctx, p.OrganizationID, page)
	if err != nil {
		return domain.Page[*domain.Request]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

// Пустой комментарий считаем отсутствующим
func trimComments(c *string) *string {
	if c == nil {
		return nil
	}
	t := strings.TrimSpace(*c)
	if t == "" {
		return nil
	}
	return &t
}
