// Command chatctl is the operator CLI of the gateway: development tokens,
// chat membership and dead-letter remediation.
//
// Commands that touch Badger open the database directory directly, the
// gateway holding the same directory must be stopped first.
package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	StoreDriver    string `envconfig:"STORE_DRIVER" default:"badger"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`
	JwtSecret      string `envconfig:"JWT_SECRET"`
	JwtIssuer      string `envconfig:"JWT_ISSUER"`
	JwtAudience    string `envconfig:"JWT_AUDIENCE" default:"chat-gateway"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"WARN"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

var (
	config     Config
	badgerPath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Operate a chat gateway deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if badgerPath != "" {
				cfg.BadgerFilepath = badgerPath
			}
			config = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&badgerPath, "badger", "", "Badger directory (overrides BADGER_FILEPATH)")
	root.AddCommand(newTokenCmd(), newChatsCmd(), newDeadLettersCmd(), newInspectCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
