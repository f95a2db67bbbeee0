// cmd/wsusreport/main.go

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/wsusreport/pkg/compliance"
	"github.com/windowsadmins/wsusreport/pkg/config"
	"github.com/windowsadmins/wsusreport/pkg/curator"
	"github.com/windowsadmins/wsusreport/pkg/logging"
	"github.com/windowsadmins/wsusreport/pkg/progress"
	"github.com/windowsadmins/wsusreport/pkg/report"
	"github.com/windowsadmins/wsusreport/pkg/version"
	"github.com/windowsadmins/wsusreport/pkg/wsus"
)

var logger *logging.Logger

func main() {
	// Define command-line flags.
	configPath := pflag.String("config", "", "Path to the configuration file.")
	snapshotPath := pflag.String("snapshot", "", "Catalog snapshot document to report against.")
	exportPath := pflag.String("export", "", "Superseded-updates CSV export path.")
	outputPath := pflag.String("output", "", "Report JSON output path.")
	reportDays := pflag.Int("report-days", 0, "Compliance window in days for approved updates.")
	exclusionDays := pflag.Int("exclusion-days", 0, "Age in days after which superseded updates are declined.")
	skipDecline := pflag.Bool("skip-decline", false, "Export superseded updates without declining them.")
	showConfig := pflag.Bool("show-config", false, "Display the current configuration and exit.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	// Count the number of -v flags.
	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv, -vvv)")
	pflag.Parse()

	logger = logging.New(verbosity > 0)

	// Handle --version flag. Verbose adds the build metadata.
	if *versionFlag {
		if verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		os.Exit(0)
	}

	cfg := loadConfiguration(*configPath)

	// Flags override the configuration file.
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}
	if *exportPath != "" {
		cfg.ExportPath = *exportPath
	}
	if pflag.Lookup("report-days").Changed {
		cfg.ReportDays = *reportDays
	}
	if pflag.Lookup("exclusion-days").Changed {
		cfg.ExclusionDays = *exclusionDays
	}
	if *skipDecline {
		cfg.SkipDecline = true
	}

	// Dynamically override LogLevel based on the number of -v flags.
	switch verbosity {
	case 0:
		// keep configured level
	case 1:
		cfg.LogLevel = "WARN"
	case 2:
		cfg.LogLevel = "INFO"
	default:
		cfg.LogLevel = "DEBUG"
	}

	if err := logging.Init(logging.Options{
		LogDir:        cfg.LogDir,
		Level:         logging.ParseLevel(cfg.LogLevel),
		EnableConsole: verbosity > 2,
	}); err != nil {
		logger.Fatal("Error initializing logger: %v", err)
	}
	defer logging.CloseLogger()

	if *showConfig {
		printConfig(cfg)
		os.Exit(0)
	}

	if cfg.SnapshotPath == "" {
		logger.Fatal("No catalog snapshot given. Use --snapshot or set SnapshotPath in the configuration.")
	}

	// Operator-supplied day windows must be positive; re-prompt on invalid
	// input rather than proceeding with a default.
	stdin := bufio.NewReader(os.Stdin)
	cfg.ReportDays = ensurePositiveDays(stdin, cfg.ReportDays,
		"Compliance window in days", compliance.ValidateReportDays)
	if cfg.ExportPath != "" && !cfg.SkipDecline {
		cfg.ExclusionDays = ensurePositiveDays(stdin, cfg.ExclusionDays,
			"Exclusion age in days", curator.ValidateExclusionDays)
	}

	snapshot, err := wsus.LoadSnapshot(cfg.SnapshotPath)
	if err != nil {
		logger.Fatal("Failed to load catalog snapshot: %v", err)
	}
	logger.Info("Loaded catalog snapshot from %s (taken %s)",
		cfg.SnapshotPath, snapshot.TakenAt().Format(time.RFC3339))

	// Stop issuing declines on interrupt; completed declines stand.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The aggregation and decline loops report progress through a tracker;
	// at -vv and above a watcher echoes it to the console.
	tracker := progress.NewTracker()
	watcherDone := make(chan struct{})
	if verbosity >= 2 {
		updates := tracker.Watch()
		go func() {
			defer close(watcherDone)
			for u := range updates {
				logger.Printf("Processed %d of %d", u.Done, u.Total)
			}
		}()
	} else {
		close(watcherDone)
	}

	rep, err := report.Assemble(ctx, snapshot, report.Params{
		AllComputersGroup: cfg.AllComputersGroup,
		ReportDays:        cfg.ReportDays,
		ExclusionDays:     cfg.ExclusionDays,
		SkipDecline:       cfg.SkipDecline,
		ExportPath:        cfg.ExportPath,
	}, tracker.Func())
	tracker.Close()
	<-watcherDone
	if err != nil {
		logger.Fatal("Report failed: %v", err)
	}

	out := *outputPath
	if out == "" {
		out = filepath.Join(cfg.OutputDir,
			fmt.Sprintf("wsusreport-%s.json", rep.GeneratedAt.Format("2006-01-02-150405")))
	}
	if err := rep.WriteJSON(out); err != nil {
		logger.Fatal("Failed to write report: %v", err)
	}

	printSummary(rep)
	logger.Success("Report written to %s", out)
}

// loadConfiguration loads the YAML configuration, falling back to defaults
// when no file exists.
func loadConfiguration(path string) *config.Configuration {
	var cfg *config.Configuration
	var err error
	if path != "" {
		cfg, err = config.LoadConfigFile(path)
		if err != nil {
			logger.Fatal("Failed to load configuration %s: %v", path, err)
		}
		return cfg
	}

	cfg, err = config.LoadConfig()
	if err != nil {
		logger.Warning("No configuration file found, using defaults")
		cfg = config.GetDefaultConfig()
	}
	return cfg
}

// ensurePositiveDays validates a day window, prompting the operator again
// until the input passes.
func ensurePositiveDays(stdin *bufio.Reader, days int, label string, validate func(int) error) int {
	for {
		if err := validate(days); err == nil {
			return days
		}

		fmt.Fprintf(os.Stderr, "%s (positive integer): ", label)
		line, err := stdin.ReadString('\n')
		if err != nil {
			logger.Fatal("%s must be a positive integer", label)
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			logger.Warning("Not a number: %s", strings.TrimSpace(line))
			days = 0
			continue
		}
		days = parsed
	}
}

func printConfig(cfg *config.Configuration) {
	fmt.Printf("SnapshotPath:      %s\n", cfg.SnapshotPath)
	fmt.Printf("OutputDir:         %s\n", cfg.OutputDir)
	fmt.Printf("ExportPath:        %s\n", cfg.ExportPath)
	fmt.Printf("LogDir:            %s\n", cfg.LogDir)
	fmt.Printf("LogLevel:          %s\n", cfg.LogLevel)
	fmt.Printf("AllComputersGroup: %s\n", cfg.AllComputersGroup)
	fmt.Printf("ExclusionDays:     %d\n", cfg.ExclusionDays)
	fmt.Printf("ReportDays:        %d\n", cfg.ReportDays)
	fmt.Printf("SkipDecline:       %t\n", cfg.SkipDecline)
}

func printSummary(rep *report.Report) {
	logger.Info("Sync window: %s", rep.SyncResult)
	logger.Info("Updates since last sync: %d new, %d revisioned, %d obsolete",
		len(rep.Lifecycle.New), len(rep.Lifecycle.Revisioned), len(rep.Lifecycle.Obsolete))
	logger.Info("Endpoint compliance across %d groups", len(rep.EndpointCompliance))
	if rep.Curation != nil {
		logger.Info("Superseded updates: %d candidates, %d declined this run, %d failed",
			rep.Curation.SupersededTotal, rep.Curation.DeclinedThisRun, rep.Curation.FailedDeclines)
	}
}
