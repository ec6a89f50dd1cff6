package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/app"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
)

// factorsCmd groups factor table maintenance
var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "Manage the stored emission factor table",
}

var factorsImportFile string

// factorsImportCmd loads a JSON factor file into the database
var factorsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a JSON factor file into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(factorsImportFile)
		if err != nil {
			return fmt.Errorf("failed to open factor file: %w", err)
		}
		defer file.Close()

		entries, sectors, err := factors.DecodeEntries(file)
		if err != nil {
			return err
		}

		stores, err := app.OpenStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		if err := stores.Factors.AutoMigrate(cmd.Context()); err != nil {
			return fmt.Errorf("failed to migrate factor tables: %w", err)
		}
		if err := stores.Factors.SaveEntries(cmd.Context(), entries); err != nil {
			return err
		}
		if err := stores.Factors.SaveSectorMappings(cmd.Context(), sectors); err != nil {
			return err
		}

		logger.Info("Imported emission factors",
			zap.Int("factors", len(entries)),
			zap.Int("sectors", len(sectors)))
		return nil
	},
}

// activitiesCmd groups activity record maintenance
var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Manage stored activity records",
}

var activitiesImportFlags struct {
	org  string
	date string
	file string
}

// activitiesImportCmd stores a JSON array of activity records for an organization
var activitiesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import activity records for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		org, err := uuid.Parse(activitiesImportFlags.org)
		if err != nil {
			return fmt.Errorf("--org must be a UUID: %w", err)
		}
		date, err := parseDate("date", activitiesImportFlags.date)
		if err != nil {
			return err
		}
		records, err := readActivities(cmd, activitiesImportFlags.file)
		if err != nil {
			return err
		}

		stores, err := app.OpenStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		service, err := newService(cmd, stores, false)
		if err != nil {
			return err
		}
		return service.ImportActivities(cmd.Context(), &disclosure.ImportRequest{
			OrganizationID: org,
			ActivityDate:   date,
			Records:        records,
		})
	},
}

func init() {
	factorsImportCmd.Flags().StringVarP(&factorsImportFile, "file", "f", "", "JSON factor file")
	_ = factorsImportCmd.MarkFlagRequired("file")
	factorsCmd.AddCommand(factorsImportCmd)

	f := activitiesImportCmd.Flags()
	f.StringVar(&activitiesImportFlags.org, "org", "", "Organization UUID")
	f.StringVar(&activitiesImportFlags.date, "date", "", "Activity date (YYYY-MM-DD)")
	f.StringVarP(&activitiesImportFlags.file, "file", "f", "-", "JSON file of activity records ('-' for stdin)")
	_ = activitiesImportCmd.MarkFlagRequired("org")
	_ = activitiesImportCmd.MarkFlagRequired("date")
	activitiesCmd.AddCommand(activitiesImportCmd)

	rootCmd.AddCommand(factorsCmd, activitiesCmd)
}
