package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/app"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

var buildFlags struct {
	activities string
	factors    string
	entity     string
	scheme     string
	name       string
	title      string
	start      string
	end        string
	method     string
	iterations int
	seed       uint64
	policy     string
	peers      bool
	out        string
	xlsx       string
	pdf        string
	csv        string
	summary    bool
}

// buildCmd builds a disclosure from a JSON file of activity records
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a disclosure from an activity file",
	Long: `Build reads a JSON array of activity records and writes the inline XBRL
document. Factors come from --factors when given, otherwise from the database.`,
	Example: `  ghg-disclosure build --activities q4.json --factors factors.json \
    --entity 5493001KJTIIGC8Y1R12 --start 2025-01-01 --end 2025-12-31 \
    --method monte_carlo --seed 7 --out report.xhtml --xlsx report.xlsx`,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.activities, "activities", "", "JSON file of activity records ('-' for stdin)")
	f.StringVar(&buildFlags.factors, "factors", "", "JSON factor file; the database is used when empty")
	f.StringVar(&buildFlags.entity, "entity", "", "Entity identifier, e.g. an LEI")
	f.StringVar(&buildFlags.scheme, "scheme", "", "Identifier scheme URI (default from config)")
	f.StringVar(&buildFlags.name, "name", "", "Entity name")
	f.StringVar(&buildFlags.title, "title", "", "Document title")
	f.StringVar(&buildFlags.start, "start", "", "Period start date (YYYY-MM-DD)")
	f.StringVar(&buildFlags.end, "end", "", "Period end date (YYYY-MM-DD)")
	f.StringVar(&buildFlags.method, "method", "", "Uncertainty method: analytic or monte_carlo")
	f.IntVar(&buildFlags.iterations, "iterations", 0, "Monte Carlo iterations")
	f.Uint64Var(&buildFlags.seed, "seed", 0, "Monte Carlo seed")
	f.StringVar(&buildFlags.policy, "policy", "", "Missing factor policy: abort, exclude or default")
	f.BoolVar(&buildFlags.peers, "peer-baselines", false, "Score consistency against the build's own records")
	f.StringVarP(&buildFlags.out, "out", "o", "-", "Output path of the XHTML document ('-' for stdout)")
	f.StringVar(&buildFlags.xlsx, "xlsx", "", "Also write the Excel workbook to this path")
	f.StringVar(&buildFlags.pdf, "pdf", "", "Also write the PDF summary to this path")
	f.StringVar(&buildFlags.csv, "csv", "", "Also write the activity CSV to this path")
	f.BoolVar(&buildFlags.summary, "summary", false, "Print the report summary as JSON to stderr")
	_ = buildCmd.MarkFlagRequired("activities")
	_ = buildCmd.MarkFlagRequired("entity")
	_ = buildCmd.MarkFlagRequired("start")
	_ = buildCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	var stores *app.Stores
	if req.Factors == nil {
		stores, err = app.OpenStores(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer stores.Close()
	}
	service, err := newService(cmd, stores, false)
	if err != nil {
		return err
	}

	report, err := service.Build(cmd.Context(), req)
	if err != nil {
		if code := disclosure.ErrorCode(err); code != "" {
			return fmt.Errorf("%s: %w", code, err)
		}
		return err
	}

	if err := writeOutput(buildFlags.out, report.Document.Bytes()); err != nil {
		return err
	}
	exports := []struct {
		path   string
		format disclosure.ExportFormat
	}{
		{buildFlags.xlsx, disclosure.FormatXLSX},
		{buildFlags.pdf, disclosure.FormatPDF},
		{buildFlags.csv, disclosure.FormatCSV},
	}
	for _, e := range exports {
		if e.path == "" {
			continue
		}
		data, _, err := service.Export(report, e.format)
		if err != nil {
			return err
		}
		if err := writeOutput(e.path, data); err != nil {
			return err
		}
		logger.Info("Wrote export", zap.String("format", string(e.format)), zap.String("path", e.path))
	}

	if buildFlags.summary {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		return enc.Encode(report.Summary(false))
	}
	return nil
}

func buildRequest(cmd *cobra.Command) (*disclosure.BuildRequest, error) {
	start, err := parseDate("start", buildFlags.start)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end", buildFlags.end)
	if err != nil {
		return nil, err
	}

	records, err := readActivities(cmd, buildFlags.activities)
	if err != nil {
		return nil, err
	}

	req := &disclosure.BuildRequest{
		Records: records,
		Metadata: xbrl.Metadata{
			EntityIdentifier: buildFlags.entity,
			IdentifierScheme: buildFlags.scheme,
			EntityName:       buildFlags.name,
			Title:            buildFlags.title,
			PeriodStart:      start,
			PeriodEnd:        end,
		},
	}

	if buildFlags.method != "" {
		method, err := uncertainty.ParseMethod(buildFlags.method)
		if err != nil {
			return nil, err
		}
		req.Options.Method = method
		req.Options.Iterations = buildFlags.iterations
		if req.Options.Iterations == 0 {
			req.Options.Iterations = cfg.Calculation.Iterations
		}
	}
	if cmd.Flags().Changed("seed") {
		seed := buildFlags.seed
		req.Options.Seed = &seed
	}
	if buildFlags.policy != "" {
		policy, err := disclosure.ParseMissingFactorPolicy(buildFlags.policy)
		if err != nil {
			return nil, err
		}
		req.Options.MissingFactorPolicy = policy
	}
	req.Options.PeerBaselines = buildFlags.peers

	if buildFlags.factors != "" {
		file, err := os.Open(buildFlags.factors)
		if err != nil {
			return nil, fmt.Errorf("failed to open factor file: %w", err)
		}
		defer file.Close()
		entries, sectors, err := factors.DecodeEntries(file)
		if err != nil {
			return nil, err
		}
		req.Factors = &disclosure.InlineFactors{Factors: entries, Sectors: sectors}
	}
	return req, nil
}

func readActivities(cmd *cobra.Command, path string) ([]emissions.ActivityRecord, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open activity file: %w", err)
		}
		defer file.Close()
		r = file
	}

	var records []emissions.ActivityRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse activity file: %w", err)
	}
	return records, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
