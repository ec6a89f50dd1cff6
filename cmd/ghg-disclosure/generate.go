package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/app"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
	"carbon-scribe/ghg-disclosure-backend/internal/reports/scheduler"
)

var generateFlags struct {
	org        string
	start      string
	end        string
	entity     string
	recipients []string
	publish    bool
}

// generateCmd builds and publishes the disclosure of one organization from
// its stored activities
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a disclosure from stored activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		org, err := uuid.Parse(generateFlags.org)
		if err != nil {
			return fmt.Errorf("--org must be a UUID: %w", err)
		}
		start, err := parseDate("start", generateFlags.start)
		if err != nil {
			return err
		}
		end, err := parseDate("end", generateFlags.end)
		if err != nil {
			return err
		}

		stores, err := app.OpenStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		service, err := newService(cmd, stores, generateFlags.publish)
		if err != nil {
			return err
		}

		req := &disclosure.GenerateRequest{
			OrganizationID: org,
			PeriodStart:    start,
			PeriodEnd:      end,
			Recipients:     generateFlags.recipients,
		}
		req.Metadata.EntityIdentifier = generateFlags.entity

		gen, err := service.GenerateForPeriod(cmd.Context(), req)
		if gen != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(generationOutput(gen)); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

var scheduleRunAt string

// scheduleCmd runs the scheduled generation once, outside the worker
var scheduleCmd = &cobra.Command{
	Use:   "run-scheduled",
	Short: "Generate the previous period's disclosure for every organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		if scheduleRunAt != "" {
			at, err := parseDate("at", scheduleRunAt)
			if err != nil {
				return err
			}
			now = at
		}

		stores, err := app.OpenStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		service, err := newService(cmd, stores, true)
		if err != nil {
			return err
		}

		managerConfig := scheduler.DefaultManagerConfig()
		managerConfig.Recipients = cfg.Scheduler.Recipients
		period := func(now time.Time) (time.Time, time.Time, error) {
			return app.PreviousPeriod(now, cfg.Scheduler.Period)
		}
		manager := scheduler.NewManager(service, stores.Activities, period, managerConfig, logger)

		summary, err := manager.RunOnce(cmd.Context(), now)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			for org, cause := range summary.Failures {
				logger.Warn("Organization failed", zap.String("organization_id", org.String()), zap.String("cause", cause))
			}
			return fmt.Errorf("%d of %d organizations failed", summary.Failed, summary.Failed+summary.Succeeded)
		}
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.org, "org", "", "Organization UUID")
	f.StringVar(&generateFlags.start, "start", "", "Period start date (YYYY-MM-DD)")
	f.StringVar(&generateFlags.end, "end", "", "Period end date (YYYY-MM-DD)")
	f.StringVar(&generateFlags.entity, "entity", "", "Entity identifier (defaults to the organization UUID)")
	f.StringSliceVar(&generateFlags.recipients, "notify", nil, "Email recipients of the publication notice")
	f.BoolVar(&generateFlags.publish, "publish", true, "Upload the outputs when storage is configured")
	_ = generateCmd.MarkFlagRequired("org")
	_ = generateCmd.MarkFlagRequired("start")
	_ = generateCmd.MarkFlagRequired("end")

	scheduleCmd.Flags().StringVar(&scheduleRunAt, "at", "", "Pretend the run happens on this date (YYYY-MM-DD)")

	rootCmd.AddCommand(generateCmd, scheduleCmd)
}

func generationOutput(gen *disclosure.Generation) map[string]interface{} {
	out := map[string]interface{}{
		"status":       gen.Status,
		"status_trail": gen.StatusTrail,
		"document_uri": gen.DocumentURI,
		"workbook_uri": gen.WorkbookURI,
		"summary_uri":  gen.SummaryURI,
	}
	if gen.FailureCause != "" {
		out["failure_cause"] = gen.FailureCause
	}
	if gen.Report != nil {
		out["report"] = gen.Report.Summary(false)
	}
	return out
}
