package main

import (
	"fmt"
	"os"
	"time"

	"github.com/adamscao/cspmauth/internal/config"
	"github.com/adamscao/cspmauth/internal/db"
	"github.com/adamscao/cspmauth/internal/db/repository"
	"github.com/adamscao/cspmauth/internal/identity"
	"github.com/adamscao/cspmauth/internal/models"
	"github.com/adamscao/cspmauth/internal/totp"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "CSPM identity administration tool",
	Long:  "Administrative tool for pre-provisioning identities and inspecting the audit trail",
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage identities",
}

var identityAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Pre-provision an identity (user completes TOTP enrollment on first sign-in)",
	RunE:  addIdentity,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all identities",
	RunE:  listIdentities,
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove an identity",
	RunE:  removeIdentity,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit entries",
	RunE:  listAudit,
}

var totpCodeCmd = &cobra.Command{
	Use:   "totp-code",
	Short: "Print the current code for a secret (authenticator mismatch debugging)",
	RunE:  printCode,
}

var (
	email      string
	name       string
	role       string
	identityID string
	auditEmail string
	auditLimit int
	rawSecret  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/cspm/config.yaml", "Config file path")

	identityAddCmd.Flags().StringVarP(&email, "email", "e", "", "Email address (required)")
	identityAddCmd.Flags().StringVarP(&name, "name", "n", "", "Display name (defaults to the address local part)")
	identityAddCmd.Flags().StringVarP(&role, "role", "r", "Viewer", "Role: Admin, Auditor or Viewer")
	identityAddCmd.MarkFlagRequired("email")

	identityRemoveCmd.Flags().StringVar(&identityID, "id", "", "Identity ID (required)")
	identityRemoveCmd.MarkFlagRequired("id")

	auditListCmd.Flags().StringVar(&auditEmail, "email", "", "Filter by email")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries")

	totpCodeCmd.Flags().StringVar(&rawSecret, "secret", "", "Base32 TOTP secret (required)")
	totpCodeCmd.MarkFlagRequired("secret")

	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityRemoveCmd)
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(totpCodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// audit records the change in the backend audit trail. Failures are
// reported but never abort the command; the change itself already
// happened.
func audit(action, email string) {
	entry := &models.AuditLog{
		Action:   action,
		Email:    email,
		ClientIP: "cli",
		Success:  true,
	}
	if err := repository.NewAuditRepository(database.DB).Create(entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit entry: %v\n", err)
	}
}

func addIdentity(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if !identity.ValidEmail(email) {
		return fmt.Errorf("invalid email address: %s", email)
	}

	r := identity.Role(role)
	if !r.Valid() {
		return fmt.Errorf("invalid role %q: must be Admin, Auditor or Viewer", role)
	}

	repo := repository.NewIdentityRepository(database.DB)
	norm := identity.NormalizeEmail(email)
	if existing, _ := repo.GetByEmail(norm); existing != nil {
		return fmt.Errorf("an identity with email %s already exists", norm)
	}

	displayName := name
	if displayName == "" {
		displayName = norm
	}

	id := &identity.Identity{
		ID:          uuid.NewString(),
		Email:       norm,
		DisplayName: displayName,
		Role:        r,
		Status:      identity.StatusActive,
	}

	if err := repo.UpsertByEmail(id); err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	audit(models.ActionAdminAdd, norm)

	fmt.Printf("\nIdentity created successfully!\n")
	fmt.Printf("ID:    %s\n", id.ID)
	fmt.Printf("Email: %s\n", id.Email)
	fmt.Printf("Role:  %s\n", id.Role)
	fmt.Printf("\nThe user will be prompted to enroll an authenticator on first sign-in.\n")

	return nil
}

func listIdentities(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewIdentityRepository(database.DB)
	identities, err := repo.List()
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	if len(identities) == 0 {
		fmt.Println("No identities found")
		return nil
	}

	fmt.Printf("\nTotal identities: %d\n\n", len(identities))
	fmt.Printf("%-38s %-30s %-8s %-8s %-8s %s\n", "ID", "Email", "Role", "MFA", "Primary", "Last Login")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	for _, id := range identities {
		mfa := "No"
		if id.Enrolled() {
			mfa = "Yes"
		}
		primary := ""
		if id.PrimaryAdmin {
			primary = "Yes"
		}
		lastLogin := "never"
		if !id.LastLoginAt.IsZero() {
			lastLogin = id.LastLoginAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-38s %-30s %-8s %-8s %-8s %s\n",
			id.ID, id.Email, id.Role, mfa, primary, lastLogin)
	}

	return nil
}

func removeIdentity(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewIdentityRepository(database.DB)
	deleted, err := repo.Delete(identityID)
	if err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}

	if deleted {
		audit(models.ActionAdminRemove, "")
		fmt.Printf("Identity %s removed\n", identityID)
	} else {
		fmt.Printf("Identity %s not found (nothing to do)\n", identityID)
	}

	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewAuditRepository(database.DB)
	entries, err := repo.ListRecent(auditEmail, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	fmt.Printf("%-20s %-22s %-30s %-8s %s\n", "Timestamp", "Action", "Email", "Success", "Error")
	fmt.Println("------------------------------------------------------------------------------------------------")
	for _, e := range entries {
		ok := "no"
		if e.Success {
			ok = "yes"
		}
		fmt.Printf("%-20s %-22s %-30s %-8s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Email, ok, e.ErrorMsg)
	}

	return nil
}

func printCode(cmd *cobra.Command, args []string) error {
	code, err := totp.CodeAt(rawSecret, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Current code: %s\n", code)
	return nil
}
