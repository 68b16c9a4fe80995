package notify

import (
	"context"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"
)

// ExpoBatchSize is the maximum number of messages per Expo push request.
const ExpoBatchSize = 100

// expoPublisher is the subset of *expo.PushClient used by ExpoChannel.
type expoPublisher interface {
	PublishMultiple(messages []expo.PushMessage) ([]expo.PushResponse, error)
}

// ExpoConfig configures the Expo channel.
type ExpoConfig struct {
	Host    string        // Empty uses the SDK default.
	Timeout time.Duration // Per request.
}

// ExpoChannel sends through the Expo push service.
type ExpoChannel struct {
	client expoPublisher
	log    *zap.Logger
}

// NewExpoChannel creates a channel backed by the Expo SDK client.
func NewExpoChannel(cfg ExpoConfig, logger *zap.Logger) *ExpoChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := expo.NewPushClient(&expo.ClientConfig{
		Host:       cfg.Host,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	return newExpoChannel(client, logger)
}

func newExpoChannel(client expoPublisher, logger *zap.Logger) *ExpoChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpoChannel{client: client, log: logger.Named("expo")}
}

// Send implements Channel. Malformed tokens and DeviceNotRegistered tickets
// are reported as invalid.
func (c *ExpoChannel) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) Outcome {
	var out Outcome

	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		// All three Expo prefixes are accepted; the SDK constructor only
		// knows ExponentPushToken.
		if !IsExpoToken(t) || !ValidToken(t) {
			c.log.Warn("invalid expo token", zap.String("token", mask(t)))
			out.Errors++
			out.InvalidRecipients = append(out.InvalidRecipients, t)
			continue
		}
		valid = append(valid, t)
	}

	for _, batch := range chunk(valid, ExpoBatchSize) {
		if err := ctx.Err(); err != nil {
			out.Errors += len(batch)
			continue
		}

		messages := make([]expo.PushMessage, 0, len(batch))
		for _, t := range batch {
			messages = append(messages, expo.PushMessage{
				To:        []expo.ExponentPushToken{expo.ExponentPushToken(t)},
				Title:     title,
				Body:      body,
				Data:      data,
				Sound:     "default",
				Priority:  expo.HighPriority,
				ChannelID: "default",
			})
		}

		responses, err := c.client.PublishMultiple(messages)
		if err != nil {
			c.log.Error("expo publish failed", zap.Error(err), zap.Int("batch", len(batch)))
			out.Errors += len(batch)
			continue
		}

		for i, t := range batch {
			if i >= len(responses) {
				out.Errors++
				continue
			}
			resp := responses[i]
			if resp.Status == expo.SuccessStatus {
				out.Sent++
				continue
			}
			out.Errors++
			if resp.Details["error"] == expo.ErrorDeviceNotRegistered {
				out.InvalidRecipients = append(out.InvalidRecipients, t)
			}
			c.log.Warn("expo ticket error",
				zap.String("token", mask(t)),
				zap.String("message", resp.Message),
				zap.String("error", resp.Details["error"]),
			)
		}
	}
	return out
}

// mask shortens a token for logs.
func mask(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
