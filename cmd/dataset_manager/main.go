package main

import (
	"context"
	"dataset_manager/manager/auth"
	"dataset_manager/manager/config"
	"dataset_manager/manager/migrations"
	"dataset_manager/manager/query"
	"dataset_manager/manager/services"
	"dataset_manager/utils"
	"dataset_manager/utils/logging"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatasetManagerEnv struct {
	DatabaseUri     string   `env:"DATABASE_URI,required"`
	JwtSecret       string   `env:"JWT_SECRET,required"`
	LogDir          string   `env:"LOG_DIR" envDefault:"logs"`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"INFO"`
	DatasetSeedFile string   `env:"DATASET_SEED_FILE"`
	ItemsPerPage    int      `env:"ITEMS_PER_PAGE" envDefault:"20"`
	PageMidPoint    int      `env:"PAGE_MIDPOINT" envDefault:"5"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

/**
 * ==========================================================================
 * ==== All variables used by the dataset manager must be loaded here.   ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*DatasetManagerEnv, error) {
	cfg := &DatasetManagerEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error loading .env file '%v': %w", envFile, err)
	}
	return nil
}

func (env *DatasetManagerEnv) pageConfig() query.PageConfig {
	pages := query.DefaultPageConfig()
	pages.ItemsPerPage = env.ItemsPerPage
	pages.MidPoint = env.PageMidPoint
	return pages
}

func openLogFile(dir, name string) (*os.File, error) {
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file %v: %w", name, err)
	}
	return file, nil
}

func initDb(uri string) (*gorm.DB, error) {
	db, err := utils.OpenDb(uri, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}

	return db, nil
}

// The reason we have a separate runApp function is because the defer calls don't
// run if we exit with log.Fatalf, so instead we return an err here and fail outside
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		if err := loadEnvFile(*envFile); err != nil {
			return err
		}
	}

	env, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(env.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL '%v': %w", env.LogLevel, err)
	}

	if err := os.MkdirAll(env.LogDir, 0777); err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := openLogFile(env.LogDir, "dataset_manager.log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	auditLog, err := openLogFile(env.LogDir, "audit.log")
	if err != nil {
		return err
	}
	defer auditLog.Close()

	logging.Setup(logFile, os.Stderr, level)
	slog.Info("logging initialized", "log_file", logFile.Name())

	pages := env.pageConfig()
	var seeds *config.SeedConfig
	if env.DatasetSeedFile != "" {
		seeds, err = config.LoadSeedConfig(env.DatasetSeedFile)
		if err != nil {
			return err
		}
		if seeds.Pagination != nil {
			pages = *seeds.Pagination
		}
	}

	db, err := initDb(env.DatabaseUri)
	if err != nil {
		return err
	}

	engine, err := services.NewEngine(db, pages)
	if err != nil {
		return fmt.Errorf("error creating dataset engine: %w", err)
	}

	if seeds != nil {
		if err := engine.Seed(seeds.Datasets); err != nil {
			return err
		}
	}

	manager := services.NewDatasetManager(engine, auth.NewJwtManager([]byte(env.JwtSecret)), auth.NewAuditLogger(auditLog))

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   env.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: !containsWildcard(env.AllowedOrigins),
		MaxAge:           300,
	}))
	r.Mount("/", manager.Routes())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting server", "port", *port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	<-idleConnsClosed
	slog.Info("server stopped")
	return nil
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			return true
		}
	}
	return false
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
