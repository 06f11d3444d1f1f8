package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jward/depsnap"
	"github.com/jward/depsnap/internal/config"
	"github.com/jward/depsnap/internal/logging"
	"github.com/jward/depsnap/scripts"
)

var (
	flagConfig  string
	flagEnvFile string
	flagDB      string
	flagFormat  string
	flagScripts string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// Set up by PersistentPreRunE.
var (
	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "depsnap",
	Short:         "Dependency snapshots for managed-language projects",
	Long:          "depsnap applies batches of build-system rule changes to per-project dependency snapshots kept in a SQLite database, and queries and renders them.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (default: .depsnap/config.yaml relative to repo root, if present)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file with DEPSNAP_* overrides (default: .env)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .depsnap/depsnap.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagScripts, "scripts-dir", "", "directory holding handlers/*.risor scripts")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(forgetCmd)
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func setup() error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}
	path := flagConfig
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(findRepoRoot(cwd), ".depsnap", "config.yaml")
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if flagDB != "" {
		c.Store.Path = flagDB
	}
	if flagScripts != "" {
		c.Scripts.Dir = flagScripts
	}
	cfg = c
	logger, logCloser = logging.New(c.Logging)
	return nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the configured database path, relative paths being
// taken from the repo root.
func resolveDBPath(repoRoot, configured string) string {
	if configured == "" {
		configured = config.Default().Store.Path
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(repoRoot, configured)
}

// engineOptions controls openEngine.
type engineOptions struct {
	// create allows a missing database to be created.
	create bool
	// persist writes applied batches back to the database. Otherwise the
	// stored snapshots are copied into memory and the database is closed.
	persist bool
	// registry receives the engine's metrics when set.
	registry prometheus.Registerer
}

// openEngine opens the database and returns an engine backed by it.
func openEngine(ctx context.Context, o engineOptions) (*depsnap.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd), cfg.Store.Path)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if !o.create {
			return nil, fmt.Errorf("database not found: %s (run 'depsnap apply' first)", dbPath)
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
	}

	s, err := depsnap.OpenStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	var st depsnap.SnapshotStore = s
	if !o.persist {
		mem, err := copyToMemory(ctx, s)
		s.Close()
		if err != nil {
			return nil, err
		}
		st = mem
	}

	opts := []depsnap.Option{
		depsnap.WithLogger(logger),
		depsnap.WithStore(st),
		depsnap.WithDebounce(cfg.Engine.Debounce),
		depsnap.WithDefaultTarget(cfg.Engine.DefaultTarget),
		depsnap.WithTreeRoots(scripts.Roots...),
	}
	// Script source: a configured directory overrides the embedded FS.
	if cfg.Scripts.Dir != "" {
		opts = append(opts, depsnap.WithScriptsDir(cfg.Scripts.Dir))
	} else {
		opts = append(opts, depsnap.WithScriptsFS(scripts.FS))
	}
	if o.registry != nil {
		opts = append(opts, depsnap.WithMetrics(o.registry))
	}
	e, err := depsnap.New(opts...)
	if err != nil {
		if c, ok := st.(io.Closer); ok {
			c.Close()
		}
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// copyToMemory loads every stored snapshot into a memory store.
func copyToMemory(ctx context.Context, s depsnap.SnapshotStore) (depsnap.SnapshotStore, error) {
	mem := depsnap.NewMemoryStore()
	infos, err := s.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	for _, info := range infos {
		snap, err := s.LoadSnapshot(ctx, info.Path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", info.Path, err)
		}
		if err := mem.SaveSnapshot(ctx, snap); err != nil {
			return nil, err
		}
	}
	return mem, nil
}
