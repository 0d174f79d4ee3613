package signaling

import (
	"fmt"
	"strings"
)

// Config selects and configures a provider adapter.
type Config struct {
	Retell RetellConfig
	Vapi   VapiConfig
}

// NewClient constructs the adapter for a named provider. All providers reduce
// to the same five-event contract, so callers never branch on the provider
// past this point.
func NewClient(provider string, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "retell":
		return NewRetellClient(cfg.Retell), nil
	case "vapi":
		return NewVapiClient(cfg.Vapi), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported signaling provider %q (expected retell|vapi|mock)", provider)
	}
}
