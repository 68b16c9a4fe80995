package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCMBatchSize is the multicast limit of the FCM API.
const FCMBatchSize = 500

// fcmSender is the subset of *messaging.Client used by FCMChannel.
type fcmSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMConfig configures the Firebase channel.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string // Service account JSON file.
	ClientEmail     string // With PrivateKey, an inline service account.
	PrivateKey      string // PEM; literal "\n" sequences are unescaped.
}

// Enabled reports whether any Firebase setting is present.
func (c FCMConfig) Enabled() bool {
	return c.ProjectID != "" || c.CredentialsFile != "" || (c.ClientEmail != "" && c.PrivateKey != "")
}

// credentialOptions picks the credential source. With none configured the
// SDK falls back to application default credentials.
func (c FCMConfig) credentialOptions() ([]option.ClientOption, error) {
	switch {
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}, nil
	case c.ClientEmail != "" && c.PrivateKey != "":
		b, err := json.Marshal(map[string]string{
			"type":         "service_account",
			"project_id":   c.ProjectID,
			"client_email": c.ClientEmail,
			"private_key":  strings.ReplaceAll(c.PrivateKey, `\n`, "\n"),
			"token_uri":    "https://oauth2.googleapis.com/token",
		})
		if err != nil {
			return nil, fmt.Errorf("encode service account: %w", err)
		}
		return []option.ClientOption{option.WithCredentialsJSON(b)}, nil
	}
	return nil, nil
}

// FCMChannel sends through Firebase Cloud Messaging.
type FCMChannel struct {
	client    fcmSender
	isInvalid func(error) bool
	log       *zap.Logger
}

// NewFCMChannel initialises a Firebase app and its messaging client.
func NewFCMChannel(ctx context.Context, cfg FCMConfig, logger *zap.Logger) (*FCMChannel, error) {
	opts, err := cfg.credentialOptions()
	if err != nil {
		return nil, err
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging: %w", err)
	}
	return newFCMChannel(client, logger), nil
}

func newFCMChannel(client fcmSender, logger *zap.Logger) *FCMChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMChannel{
		client:    client,
		isInvalid: invalidFCMToken,
		log:       logger.Named("fcm"),
	}
}

// invalidFCMToken matches the errors FCM returns for tokens that will never
// be delivered to again. Invalid-argument errors are not included: FCM also
// returns them for payload problems that would hit every token in a batch.
func invalidFCMToken(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsRegistrationTokenNotRegistered(err)
}

// Send implements Channel.
func (c *FCMChannel) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) Outcome {
	var out Outcome

	for _, batch := range chunk(tokens, FCMBatchSize) {
		resp, err := c.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Data:         data,
			Notification: &messaging.Notification{Title: title, Body: body},
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					ChannelID: "default",
					Sound:     "default",
				},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
			},
		})
		if err != nil {
			c.log.Error("fcm multicast failed", zap.Error(err), zap.Int("batch", len(batch)))
			out.Errors += len(batch)
			continue
		}

		for i, t := range batch {
			if i >= len(resp.Responses) || resp.Responses[i] == nil {
				out.Errors++
				continue
			}
			r := resp.Responses[i]
			if r.Success {
				out.Sent++
				continue
			}
			out.Errors++
			if r.Error != nil && c.isInvalid(r.Error) {
				out.InvalidRecipients = append(out.InvalidRecipients, t)
			}
			c.log.Warn("fcm send error",
				zap.String("token", mask(t)),
				zap.Bool("invalidArgument", messaging.IsInvalidArgument(r.Error)),
				zap.Error(r.Error),
			)
		}
	}
	return out
}
