package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// InitFirebase builds the Firebase Admin auth client that verifies the
// bearer ID tokens on the booking API.
func InitFirebase(credentialsFile string) (*auth.Client, error) {
	app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(context.Background())
	if err != nil {
		return nil, fmt.Errorf("init firebase auth client: %w", err)
	}
	log.Debug().Str("credentials", credentialsFile).Msg("firebase auth client ready")
	return client, nil
}
