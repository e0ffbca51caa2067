// README: Realtime fan-out of market updates over pubsub topics.
package messenger

import (
	"context"
	"fmt"

	"shuttle/internal/modules/estimate"
	"shuttle/internal/types"
)

type Kind string

const (
	KindDriverLocation        Kind = "driver_location"
	KindReservationEstimation Kind = "reservation_estimation"
	KindReservationUpdate     Kind = "reservation_update"
	KindEventEstimations      Kind = "event_estimations"
)

// Message is the envelope published on reservation and event topics.
// Exactly one payload field matching Kind is set.
type Message struct {
	Kind Kind `json:"kind"`

	DriverLocation        *DriverLocation        `json:"driver_location,omitempty"`
	ReservationEstimation *ReservationEstimation `json:"reservation_estimation,omitempty"`
	ReservationUpdate     *ReservationUpdate     `json:"reservation_update,omitempty"`
	EventEstimations      *EventEstimations      `json:"event_estimations,omitempty"`
}

type DriverLocation struct {
	ID       types.DriverID `json:"id"`
	Location types.LatLng   `json:"location"`
}

type ReservationEstimation struct {
	Estimate estimate.ReservationEstimate `json:"estimate"`
}

// ReservationUpdate carries the caller's reservation representation; the
// messenger does not interpret it.
type ReservationUpdate struct {
	Reservation any `json:"reservation"`
}

type EventEstimations struct {
	Strategy estimate.StrategyEstimations `json:"strategy"`
}

// Messenger publishes messages to topics and hands out subscriptions.
// Subscribe returns a receive channel and a stop function releasing it.
type Messenger interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error)
}

func ReservationTopic(id types.ReservationID) string {
	return fmt.Sprintf("res:%s", id)
}

func EventTopic(id types.EventID) string {
	return fmt.Sprintf("event:%s", id)
}

// SendReservationUpdate broadcasts a reservation change to the reservation's
// own topic and its event topic.
func SendReservationUpdate(ctx context.Context, m Messenger, resID types.ReservationID, eventID types.EventID, reservation any) error {
	msg := Message{
		Kind:              KindReservationUpdate,
		ReservationUpdate: &ReservationUpdate{Reservation: reservation},
	}
	if err := m.Publish(ctx, ReservationTopic(resID), msg); err != nil {
		return err
	}
	return m.Publish(ctx, EventTopic(eventID), msg)
}

// SendReservationEstimate pushes a fresh estimate to the reservation topic.
func SendReservationEstimate(ctx context.Context, m Messenger, resID types.ReservationID, est estimate.ReservationEstimate) error {
	msg := Message{
		Kind:                  KindReservationEstimation,
		ReservationEstimation: &ReservationEstimation{Estimate: est},
	}
	return m.Publish(ctx, ReservationTopic(resID), msg)
}

// SendDriverLocation shares a driver position with the event topic and every
// reservation currently riding with or waiting on that driver.
func SendDriverLocation(ctx context.Context, m Messenger, eventID types.EventID, driverID types.DriverID, reservations []types.ReservationID, loc types.LatLng) error {
	msg := Message{
		Kind:           KindDriverLocation,
		DriverLocation: &DriverLocation{ID: driverID, Location: loc},
	}
	for _, id := range reservations {
		if err := m.Publish(ctx, ReservationTopic(id), msg); err != nil {
			return err
		}
	}
	return m.Publish(ctx, EventTopic(eventID), msg)
}

// SendEventEstimations broadcasts a refreshed strategy to the event topic.
func SendEventEstimations(ctx context.Context, m Messenger, eventID types.EventID, est estimate.StrategyEstimations) error {
	msg := Message{
		Kind:             KindEventEstimations,
		EventEstimations: &EventEstimations{Strategy: est},
	}
	return m.Publish(ctx, EventTopic(eventID), msg)
}
