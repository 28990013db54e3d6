package cmd

import (
	"context"
	"fmt"

	"github.com/AzielCF/wa-amo-bridge/core/settings/application"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/chatstorage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the chat store and settings tables",
	Run: func(_ *cobra.Command, _ []string) {
		// initApp already migrated; this command exists for deploy pipelines.
		logrus.Info("[MIGRATION] schema is up to date")
		StopApp()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigrations creates the contacts, chats, messages and global_settings
// tables when missing.
func runMigrations(ctx context.Context, db *gorm.DB) error {
	logrus.Info("[MIGRATION] Checking database schema...")

	if err := chatstorage.NewGormRepository(db).InitializeSchema(ctx); err != nil {
		return fmt.Errorf("failed to migrate chat store: %w", err)
	}
	if err := application.NewSettingsService(db).InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to migrate settings: %w", err)
	}
	return nil
}
