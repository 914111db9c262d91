package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	conf "github.com/bartek5186/barsync/internal/config"
	"github.com/bartek5186/barsync/internal/cache"
	"github.com/bartek5186/barsync/internal/db"
	"github.com/bartek5186/barsync/internal/events"
	"github.com/bartek5186/barsync/internal/importer"
	logs "github.com/bartek5186/barsync/internal/logs"
	"github.com/bartek5186/barsync/internal/storage"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "barsync",
		Usage:   "Bulk import and reconciliation of ingredients and accounts",
		Version: ver,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config.json or config.yaml",
				EnvVars: []string{"BARSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "console",
				Usage: "Also log to the terminal",
			},
		},
		Commands: []*cli.Command{
			importCommand(),
			templateCommand(),
			serveCommand(),
			historyCommand(),
			costCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// stack - wszystko, co składamy przy starcie komendy
type stack struct {
	log       zerolog.Logger
	cfg       *conf.Config
	cfgPath   string
	appDir    string
	db        *db.Handle
	client    backend.Client
	publisher events.Publisher
	svc       *importer.Service
}

func setup(c *cli.Context) (*stack, error) {
	appDir, err := appDataDir("barsync")
	if err != nil {
		return nil, err
	}
	cfgPath := c.String("config")
	if cfgPath == "" {
		cfgPath = filepath.Join(appDir, "config.json")
	}
	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		return nil, err
	}
	conf.ApplyEnv(cfg)
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	log := logs.New(filepath.Join(appDir, "app.log"), c.Bool("console"))
	log = logs.SetLevel(log, cfg.LogLevel)
	if firstRun {
		log.Info().Str("path", cfgPath).Msg("Utworzono domyślną konfigurację")
	}

	rt := &stack{log: log, cfg: cfg, cfgPath: cfgPath, appDir: appDir}

	rt.db, err = db.Open(db.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}, appDir)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := rt.db.Migrate(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	log.Debug().Str("driver", rt.db.Driver).Str("db", rt.db.Path).Msg("DB ready")

	rt.client, err = backend.Build(cfg.Backend, log, cfg.Backends[cfg.Backend], backend.Deps{
		DB:      rt.db.DB,
		HTTP:    &http.Client{},
		APIKey:  cfg.APIKey,
		DataDir: appDir,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rc, err := cache.New(cache.Options{
		Enabled:  cfg.Cache.Enabled,
		RedisURL: cfg.Cache.RedisURL,
		TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}, component(log, "cache"))
	if err != nil {
		log.Warn().Err(err).Msg("record cache disabled")
		rc = cache.NewNoop()
	}

	rt.publisher, err = events.New(cfg.Events.NATSURL, cfg.Events.Subject, component(log, "events"))
	if err != nil {
		log.Warn().Err(err).Msg("events disabled")
		rt.publisher = events.Noop{}
	}

	var uploader backend.Uploader
	if cfg.Upload.Target == "s3" {
		s3c, err := storage.NewS3Client(component(log, "storage"), s3Config(cfg.Upload.S3))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("s3 upload: %w", err)
		}
		if err := s3c.Check(c.Context); err != nil {
			log.Warn().Err(err).Msg("s3 bucket check failed")
		}
		uploader = s3c
	}

	rt.svc = importer.NewService(component(log, "importer"), importer.Options{
		Client:    rt.client,
		Uploader:  uploader,
		Cache:     rc,
		Publisher: rt.publisher,
		DB:        rt.db.DB,
		Retry:     retryPolicy(cfg.Retry),
		Defaults: importer.Settings{
			UpdateBatchSize:    cfg.Import.UpdateBatchSize,
			TitleCaseThreshold: cfg.Import.TitleCaseThreshold,
			DefaultUnit:        cfg.Import.DefaultUnit,
		},
	})
	return rt, nil
}

func (rt *stack) Close() {
	if rt.svc != nil {
		rt.svc.Close()
	} else if rt.publisher != nil {
		rt.publisher.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func (rt *stack) operator(flag string) string {
	if flag != "" {
		return flag
	}
	if rt.cfg.Import.Operator != "" {
		return rt.cfg.Import.Operator
	}
	return os.Getenv("USER")
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func retryPolicy(rc conf.RetryConfig) backend.RetryPolicy {
	p := backend.DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelayMs > 0 {
		p.BaseDelay = time.Duration(rc.BaseDelayMs) * time.Millisecond
	}
	if rc.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	return p
}

func s3Config(c conf.S3Config) storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
		Prefix:    c.Prefix,
		URLExpiry: time.Duration(c.URLExpiryMs) * time.Millisecond,
	}
}

func appDataDir(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(base, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}
