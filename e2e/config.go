package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_HTTP_ADDR is the gateway HTTP address (host:port). Scenarios are skipped when empty.
	HTTPAddr string `envconfig:"E2E_HTTP_ADDR"`
	GrpcAddr string `envconfig:"E2E_GRPC_ADDR"`
	// E2E_CHAT_ID must name a chat whose members include Sender and Recipient (see chatctl).
	ChatID    int64  `envconfig:"E2E_CHAT_ID" default:"1"`
	Sender    string `envconfig:"E2E_SENDER" default:"alice"`
	Recipient string `envconfig:"E2E_RECIPIENT" default:"bob"`

	JwtSecret   string `envconfig:"JWT_SECRET"`
	JwtIssuer   string `envconfig:"JWT_ISSUER"`
	JwtAudience string `envconfig:"JWT_AUDIENCE" default:"chat-gateway"`

	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
