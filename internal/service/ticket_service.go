package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/kafka"
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// TopicTicketIssue is the ticket issuance topic, keyed by payment id
const TopicTicketIssue = "ticket.issue"

// TicketService talks to the ticket collaborator. Issuance goes
// through Kafka when a producer is configured; the HTTP endpoint is
// the fallback. Revocation is always HTTP and treats 404 as success.
type TicketService interface {
	// Issue creates a ticket for a completed payment
	Issue(ctx context.Context, payment *domain.Payment, reservation *domain.Reservation) (*domain.Ticket, error)

	// Revoke deletes the ticket issued for a payment. A ticket that
	// was never materialized is not an error.
	Revoke(ctx context.Context, paymentID string) error
}

// TicketServiceConfig contains configuration for the ticket service
type TicketServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ticketService struct {
	producer   *kafka.Producer
	httpClient *http.Client
	baseURL    string
}

// NewTicketService creates a ticket service. producer may be nil, in
// which case every issuance goes over HTTP.
func NewTicketService(producer *kafka.Producer, cfg *TicketServiceConfig) TicketService {
	timeout := 10 * time.Second
	baseURL := ""
	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		baseURL = cfg.BaseURL
	}
	return &ticketService{
		producer:   producer,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type ticketIssueMessage struct {
	TicketID      string   `json:"ticket_id"`
	PaymentID     string   `json:"payment_id"`
	ReservationID string   `json:"reservation_id"`
	UserID        string   `json:"user_id"`
	SeatIDs       []string `json:"seat_ids"`
	IssuedAt      string   `json:"issued_at"`
}

func (s *ticketService) Issue(ctx context.Context, payment *domain.Payment, reservation *domain.Reservation) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.issue")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("reservation_id", reservation.ID),
	)

	ticket := &domain.Ticket{
		ID:            uuid.New().String(),
		PaymentID:     payment.ID,
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		SeatIDs:       reservation.SeatIDs,
		IssuedAt:      time.Now(),
	}

	if s.producer != nil {
		if err := s.enqueue(ctx, ticket); err == nil {
			span.SetStatus(codes.Ok, "")
			return ticket, nil
		} else {
			logger.Get().Warn("ticket enqueue failed, falling back to HTTP",
				zap.String("payment_id", payment.ID), zap.Error(err))
		}
	}

	if err := s.issueHTTP(ctx, ticket); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

func (s *ticketService) enqueue(ctx context.Context, ticket *domain.Ticket) error {
	msg := ticketIssueMessage{
		TicketID:      ticket.ID,
		PaymentID:     ticket.PaymentID,
		ReservationID: ticket.ReservationID,
		UserID:        ticket.UserID,
		SeatIDs:       ticket.SeatIDs,
		IssuedAt:      ticket.IssuedAt.Format(time.RFC3339),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket message: %w", err)
	}

	return s.producer.Produce(ctx, &kafka.Message{
		Topic: TopicTicketIssue,
		Key:   []byte(ticket.PaymentID),
		Value: value,
		Headers: map[string]string{
			"content_type": "application/json",
		},
	})
}

func (s *ticketService) issueHTTP(ctx context.Context, ticket *domain.Ticket) error {
	if s.baseURL == "" {
		return domain.Transient(fmt.Errorf("no ticket transport available"))
	}

	body, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/tickets", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build ticket request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("ticket service unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.RemoteError{
			Service:    "ticket",
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}
	return nil
}

func (s *ticketService) Revoke(ctx context.Context, paymentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.revoke")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	if s.baseURL == "" {
		// Nothing downstream can have materialized the ticket yet.
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/tickets/%s", s.baseURL, paymentID), nil)
	if err != nil {
		return fmt.Errorf("failed to build ticket delete request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Transient(fmt.Errorf("ticket service unreachable: %w", err))
	}
	defer resp.Body.Close()

	// 404 means the ticket was never created; the delete has nothing
	// to undo and the compensation is complete.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode < 400 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &domain.RemoteError{
		Service:    "ticket",
		StatusCode: resp.StatusCode,
		Message:    string(msg),
	}
}
