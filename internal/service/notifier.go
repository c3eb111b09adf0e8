package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/kafka"
	"github.com/ticketrush/reservation-core/internal/logger"
)

// TopicBookingConfirmed is the booking confirmation notification topic
const TopicBookingConfirmed = "notification.booking-confirmed"

// Notifier publishes booking notifications. Delivery is fire and
// forget; a failed publish is logged and never propagated.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, reservation *domain.Reservation, ticket *domain.Ticket)
}

// KafkaNotifier implements Notifier using Kafka
type KafkaNotifier struct {
	producer *kafka.Producer
}

// NewKafkaNotifier creates a Kafka-backed notifier
func NewKafkaNotifier(producer *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

type bookingConfirmedMessage struct {
	ReservationID string   `json:"reservation_id"`
	UserID        string   `json:"user_id"`
	EventID       string   `json:"event_id"`
	SeatIDs       []string `json:"seat_ids"`
	TicketID      string   `json:"ticket_id"`
	ConfirmedAt   string   `json:"confirmed_at"`
}

func (n *KafkaNotifier) NotifyBookingConfirmed(ctx context.Context, reservation *domain.Reservation, ticket *domain.Ticket) {
	msg := bookingConfirmedMessage{
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		EventID:       reservation.EventID,
		SeatIDs:       reservation.SeatIDs,
		TicketID:      ticket.ID,
		ConfirmedAt:   time.Now().Format(time.RFC3339),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		logger.Get().Warn("failed to marshal booking notification",
			zap.String("reservation_id", reservation.ID), zap.Error(err))
		return
	}

	err = n.producer.Produce(ctx, &kafka.Message{
		Topic: TopicBookingConfirmed,
		Key:   []byte(reservation.UserID),
		Value: value,
	})
	if err != nil {
		logger.Get().Warn("failed to publish booking notification",
			zap.String("reservation_id", reservation.ID), zap.Error(err))
	}
}

// NoOpNotifier is a Notifier that does nothing
type NoOpNotifier struct{}

// NewNoOpNotifier creates a no-op notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) NotifyBookingConfirmed(ctx context.Context, reservation *domain.Reservation, ticket *domain.Ticket) {
}
