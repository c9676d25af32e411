package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corems/migrations/internal/config"
	"github.com/corems/migrations/internal/discovery"
	"github.com/corems/migrations/internal/engine"
	"github.com/corems/migrations/internal/engine/mysql"
	"github.com/corems/migrations/internal/engine/postgres"
	"github.com/corems/migrations/internal/logger"
	"github.com/corems/migrations/internal/orchestrator"
)

var (
	configFile      string
	reposPath       string
	corePath        string
	mode            string
	service         string
	includeMockdata bool
	clean           bool
	dryRun          bool
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "corems-migrate",
	Short: "Discover and run service database migrations",
	Long: `corems-migrate scans the installed service repositories for versioned
schema migrations and optional mockdata, and applies them in order:
core migrations first, then one scope per service.

Per-service mode (the default) gives every service its own schema and
history table. Global mode aggregates everything into the shared
"migrations" schema the way the original toolkit did.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMigrate,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List migratable services without touching the database",
	RunE:  runDiscover,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corems-migrate version %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&reposPath, "repos", "", "Root directory containing the installed service repositories")
	rootCmd.PersistentFlags().StringVar(&corePath, "core", "", "Directory containing the core migrations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().StringVar(&mode, "mode", "", "Orchestration mode: per-service or global")
	rootCmd.Flags().StringVar(&service, "service", "", "Migrate exactly one service (per-service mode)")
	rootCmd.Flags().BoolVar(&includeMockdata, "include-mockdata", false, "Include repeatable mockdata migrations")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "Destructively reset target schemas before migrating (local development only)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report pending migrations without applying them")

	rootCmd.AddCommand(discoverCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if verbose {
		logger.SetVerbose()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator := engine.NewSQLMigrator(db, dialect)
	migrator.DryRun = cfg.Run.DryRun

	summary, err := orchestrator.New(cfg, migrator).Run(cmd.Context())
	if err != nil {
		return err
	}

	logger.Info("Migration completed!")
	logger.Infof("Migrations executed: %d", summary.TotalExecuted)
	for _, scope := range summary.Scopes {
		version := scope.Result.TargetSchemaVersion
		if version == "" {
			version = "none"
		}
		logger.Infof("Schema %s at version %s", scope.Schema, version)
	}
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if verbose {
		logger.SetVerbose()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sources, err := discovery.Discover(cfg.Paths.ReposRoot)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("No migratable services found")
		return nil
	}

	for _, source := range sources {
		fmt.Println(source.Name)
		fmt.Printf("  schema:   %s\n", orchestrator.SchemaName(source.Name))
		fmt.Printf("  setup:    %s\n", source.SetupPath)
		if source.MockdataPath != "" {
			fmt.Printf("  mockdata: %s\n", source.MockdataPath)
		}
	}
	return nil
}

// loadConfig layers defaults, the optional config file, environment
// variables, and finally any explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnv()

	if reposPath != "" {
		cfg.Paths.ReposRoot = reposPath
	}
	if corePath != "" {
		cfg.Paths.Core = corePath
	}
	if mode != "" {
		cfg.Run.Mode = mode
	}
	if service != "" {
		cfg.Run.Service = service
	}
	if cmd.Flags().Changed("include-mockdata") {
		cfg.Run.IncludeMockdata = includeMockdata
	}
	if cmd.Flags().Changed("clean") {
		cfg.Run.CleanBeforeMigrate = clean
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Run.DryRun = dryRun
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*sql.DB, engine.Dialect, error) {
	conn := engine.ConnConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(conn)
		return db, postgres.Dialect{}, err
	case config.DriverMySQL:
		db, err := mysql.Open(conn)
		return db, mysql.Dialect{}, err
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
