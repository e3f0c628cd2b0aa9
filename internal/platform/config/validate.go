package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError lists config fields, or environment variables that failed to parse,
// which prevent the API from starting.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// validate checks cross-field requirements. Integrations are optional, but once one is
// switched on it must be complete.
func validate(cfg Config) []string {
	checks := []struct {
		field  string
		failed bool
	}{
		{"Server.Port", cfg.Server.Port == ""},
		{"Firebase.ProjectID", cfg.Firebase.ProjectID == ""},
		{"Store.Currency", len(cfg.Store.Currency) != 3},
		{"Redis.CartTTL", cfg.Redis.Addr != "" && cfg.Redis.CartTTL <= 0},
		{"Storage.SignerAccount", cfg.Storage.MediaBucket != "" && cfg.Storage.SignerAccount == ""},
		{"Shipping.Credentials", (cfg.Shipping.Email == "") != (cfg.Shipping.Password == "")},
		{"Shipping.PickupPostcode", cfg.Shipping.Email != "" && len(cfg.Shipping.PickupPostcode) != 6},
		{"Email.From", cfg.Email.APIKey != "" && cfg.Email.From == ""},
		{"Security.OIDC.Audience", cfg.PubSub.EmailTopic != "" && cfg.Security.OIDC.Audience == ""},
		{"Idempotency.Header", cfg.Idempotency.Header == ""},
		{"Idempotency.TTL", cfg.Idempotency.TTL <= 0},
		{"Idempotency.CleanupInterval", cfg.Idempotency.CleanupInterval <= 0},
		{"Idempotency.CleanupBatchSize", cfg.Idempotency.CleanupBatchSize <= 0},
		{"Jobs.PaymentExpiry", cfg.Jobs.PaymentExpiry <= 0},
	}
	var failed []string
	for _, check := range checks {
		if check.failed {
			failed = append(failed, check.field)
		}
	}
	return failed
}
