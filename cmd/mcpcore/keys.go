package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/mcpcore/pkg/auth"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys in the configured auth storage backend",
}

var (
	keyRole string
	keyTTL  time.Duration
)

func init() {
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysCreate,
	}
	createCmd.Flags().StringVar(&keyRole, "role", "operator", "role to grant: admin, operator, monitor, or custom")
	createCmd.Flags().DurationVar(&keyTTL, "ttl", 0, "key lifetime; zero means no expiry")
	keysCmd.AddCommand(createCmd)

	keysCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE:  runKeysList,
	})

	keysCmd.AddCommand(&cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysRevoke,
	})

	keysCmd.AddCommand(&cobra.Command{
		Use:   "rotate ID",
		Short: "Rotate an API key's secret, invalidating the old one",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysRotate,
	})
}

func newManagerForCLI() (*auth.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return buildAuthManager(cfg, logger, nil)
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	m, err := newManagerForCLI()
	if err != nil {
		return err
	}
	role, err := roleForName(keyRole)
	if err != nil {
		return err
	}
	var ttl *time.Duration
	if keyTTL > 0 {
		ttl = &keyTTL
	}
	key, err := m.CreateApiKey(args[0], role, ttl, nil)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}
	fmt.Printf("id:     %s\n", key.ID)
	fmt.Printf("secret: %s\n", key.Secret)
	fmt.Printf("role:   %s\n", key.Role.Kind)
	fmt.Println("store the secret now; it is never shown again")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	m, err := newManagerForCLI()
	if err != nil {
		return err
	}
	for _, key := range m.ListApiKeys() {
		status := "active"
		if !key.Active {
			status = "revoked"
		}
		fmt.Printf("%s\t%s\t%s\n", key.ID, key.Role.Kind, status)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	m, err := newManagerForCLI()
	if err != nil {
		return err
	}
	if err := m.RevokeApiKey(args[0]); err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	fmt.Println("revoked")
	return nil
}

func runKeysRotate(cmd *cobra.Command, args []string) error {
	m, err := newManagerForCLI()
	if err != nil {
		return err
	}
	secret, err := m.RotateApiKey(args[0])
	if err != nil {
		return fmt.Errorf("rotating key: %w", err)
	}
	fmt.Printf("new secret: %s\n", secret)
	fmt.Println("store the secret now; it is never shown again")
	return nil
}
