// Command agent is the cashvision camera agent: it loads every camera
// config under the config directory, starts one worker per camera, and
// serves the status/control HTTP surface until terminated.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/cashvision/internal/api"
	"github.com/technosupport/cashvision/internal/config"
	"github.com/technosupport/cashvision/internal/metrics"
	"github.com/technosupport/cashvision/internal/model"
	"github.com/technosupport/cashvision/internal/notify"
	"github.com/technosupport/cashvision/internal/platform/paths"
	"github.com/technosupport/cashvision/internal/security"
	"github.com/technosupport/cashvision/internal/sink"
	"github.com/technosupport/cashvision/internal/store"
	"github.com/technosupport/cashvision/internal/supervisor"
)

func main() {
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("agent: preparing data directories: %v", err)
	}

	db, err := openStore()
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	defer db.Close()
	eventStore := store.NewPostgresStore(db)

	eventSink := sink.New(paths.ResolveMediaRoot(), eventStore)

	if pub := maybeNATSPublisher(); pub != nil {
		eventSink.OnPersisted = pub.PublishBestEffort
	}
	eventSink.OnFailed = func(job sink.Job, err error) {
		stage := sink.StageOf(err)
		metrics.PersistenceFailuresTotal.WithLabelValues(job.CameraID, stage).Inc()
		log.Printf("agent: persist failed for camera %s (stage=%s): %v", job.CameraID, stage, err)
	}

	vault, err := security.NewVault()
	if err != nil {
		log.Printf("agent: no master keyring configured (%v); encrypted camera passwords will fail to load", err)
		vault = nil
	}

	sup := supervisor.New(eventSink, vault)

	cameras, loadErrs := config.LoadDirectory(paths.ResolveConfigPath(""))
	for _, e := range loadErrs {
		log.Printf("agent: camera config error: %v", e)
	}
	cfgList := make([]model.CameraConfig, 0, len(cameras))
	for _, cfg := range cameras {
		cfgList = append(cfgList, cfg)
	}
	sup.StartAll(cfgList)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.RunReaper(ctx)

	watcher := config.NewWatcher(paths.ResolveConfigPath(""), func(cameraID string) {
		if cameraID == "" {
			log.Printf("agent: config directory changed (bulk), no targeted restart available")
			return
		}
		reloaded, _ := config.LoadDirectory(paths.ResolveConfigPath(""))
		cfg, ok := reloaded[cameraID]
		if !ok {
			log.Printf("agent: config change for %s: no valid config found", cameraID)
			return
		}
		if err := sup.Stop(cameraID); err != nil {
			log.Printf("agent: stop on config change for %s: %v", cameraID, err)
			return
		}
		if err := sup.Start(cfg); err != nil {
			log.Printf("agent: restart on config change for %s: %v", cameraID, err)
		}
	})
	go watcher.Run(ctx)

	server := api.New(sup)
	addr := os.Getenv("CASHVISION_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{Addr: addr, Handler: server.Router()}
	go func() {
		log.Printf("agent: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("agent: http server: %v", err)
		}
	}()

	waitForShutdown()
	log.Printf("agent: shutting down")
	cancel()
	httpServer.Shutdown(context.Background())
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func openStore() (*sql.DB, error) {
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	sslmode := envOr("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
	db, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging event store: %w", err)
	}
	return db, nil
}

func maybeNATSPublisher() *notify.Publisher {
	url := os.Getenv("NATS_URL")
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		log.Printf("agent: NATS connect failed (%v); event notifications disabled", err)
		return nil
	}
	return notify.New(conn, 3)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
