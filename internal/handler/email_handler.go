package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

type EmailService interface {
	Send(ctx context.Context, userID string, message domain.OutboundMessage) (domain.DispatchOutcome, error)
	SendBulk(ctx context.Context, userID string, messages []domain.OutboundMessage) (*domain.DispatchResult, error)
	List(ctx context.Context, params service.EmailListParams) (*service.EmailPage, error)
	Get(ctx context.Context, userID string, id string) (*service.EmailDetail, error)
}

type EmailHandler struct {
	service EmailService
}

func NewEmailHandler(service EmailService) (*EmailHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("email service is required")
	}
	return &EmailHandler{service: service}, nil
}

func RegisterEmailRoutes(router fiber.Router, service EmailService) error {
	h, err := NewEmailHandler(service)
	if err != nil {
		return err
	}

	user := RequireUser()
	v1 := router.Group("/v1")
	v1.Post("/emails", user, h.SendEmail)
	v1.Post("/emails/bulk", user, h.SendBulk)
	v1.Get("/emails", user, h.ListEmails)
	v1.Get("/emails/:id", user, h.GetEmail)

	return nil
}

type attachmentRequest struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

type sendEmailRequest struct {
	To          string              `json:"to"`
	ToName      string              `json:"toName,omitempty"`
	Subject     string              `json:"subject"`
	HTML        string              `json:"html"`
	Text        string              `json:"text,omitempty"`
	From        string              `json:"from,omitempty"`
	ReplyTo     string              `json:"replyTo,omitempty"`
	Attachments []attachmentRequest `json:"attachments,omitempty"`
}

type sendBulkRequest struct {
	Emails []sendEmailRequest `json:"emails"`
}

type outcomeResponse struct {
	To                string `json:"to"`
	Success           bool   `json:"success"`
	SentEmailID       string `json:"sentEmailId,omitempty"`
	ProviderMessageID string `json:"messageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

type failureResponse struct {
	To    string `json:"to"`
	Error string `json:"error"`
}

type dispatchResultResponse struct {
	Success   bool              `json:"success"`
	Attempted int               `json:"attempted"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Errors    []failureResponse `json:"errors"`
	Results   []outcomeResponse `json:"results"`
}

type sentEmailResponse struct {
	ID                string     `json:"id"`
	CampaignID        *string    `json:"campaignId,omitempty"`
	RecipientEmail    string     `json:"recipientEmail"`
	RecipientName     *string    `json:"recipientName,omitempty"`
	Subject           string     `json:"subject"`
	Status            string     `json:"status"`
	ProviderMessageID *string    `json:"messageId,omitempty"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type deliveryEventResponse struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Applied        bool       `json:"applied"`
	PreviousStatus *string    `json:"previousStatus,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	OccurredAt     *time.Time `json:"occurredAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type emailDetailResponse struct {
	sentEmailResponse
	Events []deliveryEventResponse `json:"events"`
}

type listEmailsResponse struct {
	Data []sentEmailResponse `json:"data"`
	Meta listMeta            `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *EmailHandler) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	message := requestToOutboundMessage(req)
	if err := message.Validate(); err != nil {
		return toHTTPError(err)
	}

	outcome, err := h.service.Send(c.UserContext(), currentUserID(c), message)
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusOK
	if !outcome.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(toOutcomeResponse(outcome))
}

func (h *EmailHandler) SendBulk(c *fiber.Ctx) error {
	var req sendBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Emails) == 0 {
		return toHTTPError(fmt.Errorf("%w: emails is required", domain.ErrValidation))
	}

	messages := make([]domain.OutboundMessage, 0, len(req.Emails))
	for _, item := range req.Emails {
		messages = append(messages, requestToOutboundMessage(item))
	}

	result, err := h.service.SendBulk(c.UserContext(), currentUserID(c), messages)
	if err != nil && result == nil {
		return toHTTPError(err)
	}

	// A partial result comes back together with the context error when the
	// request deadline ends the batch early.
	return c.Status(fiber.StatusOK).JSON(toDispatchResultResponse(result))
}

func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	params := service.EmailListParams{
		UserID:   currentUserID(c),
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}
	if params.Page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}
	if campaignID := strings.TrimSpace(c.Query("campaignId")); campaignID != "" {
		params.CampaignID = &campaignID
	}
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseSentEmailStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		params.Status = &status
	}

	page, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]sentEmailResponse, 0, len(page.Items))
	for i := range page.Items {
		data = append(data, toSentEmailResponse(&page.Items[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listEmailsResponse{
		Data: data,
		Meta: listMeta{
			Page:     page.Page,
			PageSize: page.PageSize,
			Total:    page.Total,
		},
	})
}

func (h *EmailHandler) GetEmail(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	detail, err := h.service.Get(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return toHTTPError(err)
	}

	events := make([]deliveryEventResponse, 0, len(detail.Events))
	for _, e := range detail.Events {
		var previous *string
		if e.PreviousStatus != nil {
			s := e.PreviousStatus.String()
			previous = &s
		}
		events = append(events, deliveryEventResponse{
			ID:             e.ID,
			Kind:           e.Kind,
			Applied:        e.Applied,
			PreviousStatus: previous,
			Reason:         e.Reason,
			OccurredAt:     e.OccurredAt,
			CreatedAt:      e.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(emailDetailResponse{
		sentEmailResponse: toSentEmailResponse(detail.Email),
		Events:            events,
	})
}

func requestToOutboundMessage(req sendEmailRequest) domain.OutboundMessage {
	msg := domain.OutboundMessage{
		To:      strings.TrimSpace(req.To),
		ToName:  strings.TrimSpace(req.ToName),
		Subject: strings.TrimSpace(req.Subject),
		HTML:    req.HTML,
		Text:    req.Text,
		From:    strings.TrimSpace(req.From),
		ReplyTo: strings.TrimSpace(req.ReplyTo),
	}
	for _, a := range req.Attachments {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename:    strings.TrimSpace(a.Filename),
			Content:     a.Content,
			ContentType: strings.TrimSpace(a.ContentType),
		})
	}
	return msg
}

func toOutcomeResponse(o domain.DispatchOutcome) outcomeResponse {
	return outcomeResponse{
		To:                o.To,
		Success:           o.Success,
		SentEmailID:       o.SentEmailID,
		ProviderMessageID: o.ProviderMessageID,
		Error:             o.Error,
	}
}

func toDispatchResultResponse(r *domain.DispatchResult) dispatchResultResponse {
	resp := dispatchResultResponse{
		Success:   r.Success,
		Attempted: r.Attempted,
		Sent:      r.Sent,
		Failed:    r.Failed,
		Errors:    make([]failureResponse, 0, len(r.Errors)),
		Results:   make([]outcomeResponse, 0, len(r.Outcomes)),
	}
	for _, f := range r.Errors {
		resp.Errors = append(resp.Errors, failureResponse{To: f.To, Error: f.Error})
	}
	for _, o := range r.Outcomes {
		resp.Results = append(resp.Results, toOutcomeResponse(o))
	}
	return resp
}

func toSentEmailResponse(e *domain.SentEmail) sentEmailResponse {
	if e == nil {
		return sentEmailResponse{}
	}

	return sentEmailResponse{
		ID:                e.ID,
		CampaignID:        e.CampaignID,
		RecipientEmail:    e.RecipientEmail,
		RecipientName:     e.RecipientName,
		Subject:           e.Subject,
		Status:            e.Status.String(),
		ProviderMessageID: e.ProviderMessageID,
		ErrorMessage:      e.ErrorMessage,
		SentAt:            e.SentAt,
		DeliveredAt:       e.DeliveredAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
