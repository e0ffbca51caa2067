// README: FCM implementation of the pusher via the Firebase Admin SDK.
package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var ErrEmptyToken = errors.New("empty device token")

type FCM struct {
	client *messaging.Client
}

// NewFCM initialises the Firebase Admin SDK. If credentialsFile is empty,
// application-default credentials are used.
func NewFCM(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &FCM{client: client}, nil
}

func (f *FCM) DriverAccepted(ctx context.Context, deviceToken string, ride Ride) error {
	return f.send(ctx, deviceToken, ride, "driver_accepted",
		"Driver on the way",
		fmt.Sprintf("A driver accepted your ride for %s", ride.EventName),
	)
}

func (f *FCM) DriverArrived(ctx context.Context, deviceToken string, ride Ride) error {
	return f.send(ctx, deviceToken, ride, "driver_arrived",
		"Your driver is here",
		"Head to your pickup spot",
	)
}

func (f *FCM) send(ctx context.Context, deviceToken string, ride Ride, kind, title, body string) error {
	if deviceToken == "" {
		return ErrEmptyToken
	}
	msg := &messaging.Message{
		Token: deviceToken,
		Data: map[string]string{
			"type":           kind,
			"id_reservation": string(ride.ReservationID),
			"id_event":       string(ride.EventID),
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending FCM: %w", err)
	}
	return nil
}
