package storefrontd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"storefront/observability/logging"
)

func TestBearerTokenLogRedactsSensitiveValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	sensitiveToken := "sf-admin-9f2c1d8e7b6a"
	logger.Info("admin authentication configured",
		logging.MaskField("bearer_token", sensitiveToken),
		slog.String("admin", "0x0102030405060708090a0b0c0d0e0f1011121314"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log payload: %v", err)
	}

	if logging.IsAllowlisted("bearer_token") {
		t.Fatalf("bearer_token should not be allowlisted for logging: %v", logging.RedactionAllowlist())
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte(sensitiveToken)) {
		t.Fatalf("log output leaked bearer token: %s", raw)
	}

	value, ok := entry["bearer_token"].(string)
	if !ok {
		t.Fatalf("expected string bearer_token attribute, got %T", entry["bearer_token"])
	}
	if value != logging.RedactedValue {
		t.Fatalf("expected redacted bearer token, got %q", value)
	}
}
