// Package notify delivers push notifications to registered devices over
// Expo and Firebase Cloud Messaging.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome summarises one dispatch. Errors counts recipients that were not
// delivered, invalid ones included.
type Outcome struct {
	Sent              int      `json:"sent"`
	Errors            int      `json:"errors"`
	InvalidRecipients []string `json:"invalidRecipients,omitempty"`
}

// Merge adds o2 into o.
func (o *Outcome) Merge(o2 Outcome) {
	o.Sent += o2.Sent
	o.Errors += o2.Errors
	o.InvalidRecipients = append(o.InvalidRecipients, o2.InvalidRecipients...)
}

// Gateway delivers one notification to a set of recipients. Dispatch never
// fails: every problem is reflected in the returned Outcome.
type Gateway interface {
	Dispatch(ctx context.Context, recipients []string, title, body string, metadata map[string]any) Outcome
}

// Channel is a single delivery provider.
type Channel interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) Outcome
}

// Expo token prefixes. Anything else is treated as an FCM registration token.
var expoPrefixes = []string{"ExponentPushToken[", "ExpoPushToken[", "ExpoToken["}

// IsExpoToken reports whether token belongs to the Expo channel.
func IsExpoToken(token string) bool {
	for _, p := range expoPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// ValidToken performs the shape check done at registration time.
func ValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if IsExpoToken(token) {
		return strings.HasSuffix(token, "]") && !strings.HasSuffix(token, "[]")
	}
	return len(token) >= 20 && !strings.ContainsAny(token, " \t\n")
}

// stringifyData flattens metadata into the string map both providers
// require. Strings are kept as is; other values are JSON encoded.
func stringifyData(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func chunk(tokens []string, size int) [][]string {
	var out [][]string
	for size < len(tokens) {
		tokens, out = tokens[size:], append(out, tokens[:size:size])
	}
	if len(tokens) > 0 {
		out = append(out, tokens)
	}
	return out
}
