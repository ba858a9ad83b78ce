package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbonduro/adpost/internal/config"
	"github.com/vbonduro/adpost/internal/db"
	"github.com/vbonduro/adpost/internal/draft"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/logging"
	"github.com/vbonduro/adpost/internal/photos"
	"github.com/vbonduro/adpost/internal/photostore/local"
	"github.com/vbonduro/adpost/internal/service"
	"github.com/vbonduro/adpost/internal/store"
	"github.com/vbonduro/adpost/internal/web"
	"github.com/vbonduro/adpost/internal/web/templates"
)

var (
	cfg    *config.Config
	logger *slog.Logger
	// closeLog closes the log file opened for LOG_FILE, if any.
	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "adpost",
	Short: "Classified ads posting server",
	Long: `adpost serves the "post your ad" form for property listings.

Run without arguments to start the web server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, closeLog, err = logging.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the form's field registry",
	Long: `Loads the field registry (FIELDS_FILE when set, otherwise the built-in
property form), validates it and prints one row per field.`,
	RunE: runFields,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, fieldsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRegistry() (*fields.Registry, error) {
	if cfg.FieldsFile != "" {
		return fields.LoadFile(cfg.FieldsFile)
	}
	return fields.PropertyAd()
}

// storage holds the database and both photo stores.
type storage struct {
	db       *sql.DB
	previews *local.Store
	photos   *local.Store
	cleanup  func()
}

func (st *storage) Close() {
	if err := st.db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	st.cleanup()
}

// openStorage opens the database and both photo stores. In test mode
// everything lives in memory or below a temporary directory.
func openStorage() (*storage, error) {
	st := &storage{cleanup: func() {}}
	previewPath, photoPath := cfg.PreviewPath, cfg.PhotoPath

	var err error
	if cfg.TestMode {
		var dir string
		if dir, err = os.MkdirTemp("", "adpost-*"); err != nil {
			return nil, fmt.Errorf("failed to create test directory: %w", err)
		}
		logger.Warn("test mode: using in-memory database and temporary storage", "dir", dir)
		st.cleanup = func() { _ = os.RemoveAll(dir) }
		previewPath, photoPath = filepath.Join(dir, "previews"), filepath.Join(dir, "photos")
		st.db, err = db.OpenForTesting()
	} else {
		st.db, err = db.Open(cfg.DBPath)
	}
	if err != nil {
		st.cleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if st.previews, err = local.New(previewPath); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize preview store: %w", err)
	}
	if st.photos, err = local.New(photoPath); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize photo store: %w", err)
	}
	return st, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()
	previews := st.previews

	listings := service.NewListingService(
		store.NewAdStore(st.db),
		store.NewAdPhotoStore(st.db),
		previews,
		st.photos,
		logger,
	)

	drafts, err := draft.NewStore(cfg.MaxDrafts, func(id string) *form.Controller {
		pm := photos.NewManager(previews, "draft_"+id, logger)
		return form.NewController(registry, pm, listings, logger)
	}, logger)
	if err != nil {
		return err
	}
	// Releases the previews of drafts still open at shutdown.
	defer drafts.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.NewServer(drafts, listings, registry, previews, templates.FS, logger)
	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	version, err := db.Migrate(database)
	if err != nil {
		return err
	}
	logger.Info("database migrated", "path", cfg.DBPath, "version", version)
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}

func runFields(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	return printRegistry(cmd.OutOrStdout(), registry)
}
