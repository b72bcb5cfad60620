package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"communitydms/api/internal/authpw"
	"communitydms/api/internal/config"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
	"communitydms/api/internal/util"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:          "dmsctl",
	Short:        "Administrative tasks for the document manager",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return store.ApplyMigrations(cfg.Database.URL, util.NewLogger(cfg.Server.Env))
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps <= 0 {
			return errors.New("--steps must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return store.RollbackMigrations(cfg.Database.URL, steps, util.NewLogger(cfg.Server.Env))
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := store.NewMigrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer m.Close()
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		fmt.Printf("version %d", version)
		if dirty {
			fmt.Print(" (dirty)")
		}
		fmt.Println()
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		firstName, _ := cmd.Flags().GetString("first-name")
		lastName, _ := cmd.Flags().GetString("last-name")
		if email == "" {
			return errors.New("--email is required")
		}

		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Confirm password: ")
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := authpw.NewService(store.NewPostgresStore(db)).Register(ctx, authpw.RegisterRequest{
			Email:           email,
			Password:        password,
			PasswordConfirm: confirm,
			FirstName:       firstName,
			LastName:        lastName,
			Role:            rbac.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("creating admin: %w", err)
		}
		fmt.Printf("Created admin %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

// readPassword reads without echo from a terminal and falls back to a plain
// line read when stdin is piped.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var stdin = bufio.NewReader(os.Stdin)

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	migrateDownCmd.Flags().IntP("steps", "n", 1, "Number of migrations to roll back")

	userCmd.AddCommand(userCreateAdminCmd)
	userCreateAdminCmd.Flags().String("email", "", "Admin email address")
	userCreateAdminCmd.Flags().String("first-name", "", "First name")
	userCreateAdminCmd.Flags().String("last-name", "", "Last name")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
}
