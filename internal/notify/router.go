package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Router splits recipients between the Expo and FCM channels and merges
// their outcomes. A nil channel counts its recipients as errors.
type Router struct {
	expo Channel
	fcm  Channel
	log  *zap.Logger
}

// NewRouter creates a gateway over the given channels. Either may be nil.
func NewRouter(expo, fcm Channel, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{expo: expo, fcm: fcm, log: logger.Named("notify")}
}

// Dispatch implements Gateway.
func (r *Router) Dispatch(ctx context.Context, recipients []string, title, body string, metadata map[string]any) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("dispatch panicked", zap.Any("panic", rec))
			out = Outcome{Errors: len(recipients)}
		}
	}()

	expoTokens, fcmTokens := split(recipients)
	if len(expoTokens)+len(fcmTokens) == 0 {
		r.log.Warn("no recipients to notify")
		return Outcome{}
	}

	data := stringifyData(metadata)
	out.Merge(r.send(ctx, "expo", r.expo, expoTokens, title, body, data))
	out.Merge(r.send(ctx, "fcm", r.fcm, fcmTokens, title, body, data))

	r.log.Info("notification dispatched",
		zap.String("title", title),
		zap.Int("expo", len(expoTokens)),
		zap.Int("fcm", len(fcmTokens)),
		zap.Int("sent", out.Sent),
		zap.Int("errors", out.Errors),
		zap.Int("invalid", len(out.InvalidRecipients)),
	)
	return out
}

func (r *Router) send(ctx context.Context, name string, ch Channel, tokens []string, title, body string, data map[string]string) Outcome {
	if len(tokens) == 0 {
		return Outcome{}
	}
	if ch == nil {
		r.log.Warn("channel not configured, recipients skipped",
			zap.String("channel", name),
			zap.Int("recipients", len(tokens)),
		)
		return Outcome{Errors: len(tokens)}
	}
	return ch.Send(ctx, tokens, title, body, data)
}

// split drops blanks and duplicates and partitions tokens by channel.
func split(recipients []string) (expo, fcm []string) {
	seen := make(map[string]struct{}, len(recipients))
	for _, t := range recipients {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if IsExpoToken(t) {
			expo = append(expo, t)
		} else {
			fcm = append(fcm, t)
		}
	}
	return expo, fcm
}

// String describes the configured channels for startup logs.
func (r *Router) String() string {
	return fmt.Sprintf("router(expo=%t, fcm=%t)", r.expo != nil, r.fcm != nil)
}
