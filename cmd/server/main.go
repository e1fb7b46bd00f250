package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/kdimtricp/rollcall/internal/api"
	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/camera"
	"github.com/kdimtricp/rollcall/internal/config"
	"github.com/kdimtricp/rollcall/internal/database"
	"github.com/kdimtricp/rollcall/internal/detect"
	"github.com/kdimtricp/rollcall/internal/events"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
	"github.com/kdimtricp/rollcall/internal/roster"
	"github.com/kdimtricp/rollcall/internal/session"
	"github.com/kdimtricp/rollcall/internal/storage"
	"github.com/kdimtricp/rollcall/internal/windows"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	log.Printf("Running database migrations from %s", cfg.MigrationsPath)
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	kv := database.NewKVRepository(db)

	snapshots, err := storage.NewLocalStorage(cfg.SnapshotDir)
	if err != nil {
		log.Fatal("Failed to initialize snapshot storage:", err)
	}

	cam, err := camera.New(cfg.Camera)
	if err != nil {
		log.Fatal("Failed to configure camera:", err)
	}

	detector := detect.New(cfg.Detector)
	if err := detect.Available(detector); err != nil {
		log.Printf("Warning: face detection disabled, camera will stream only: %v", err)
	}

	hasher, err := fingerprint.NewHasher(cfg.Match.Hash)
	if err != nil {
		log.Fatal("Invalid match hash:", err)
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.RelayURL != "" {
		publisher = events.NewHTTPRelay(cfg.RelayURL)
	} else {
		log.Printf("No relay_url configured, attendance events are only logged")
	}

	store := attendance.NewStore(kv)
	sessions := session.NewService(cam, detector, store, publisher, session.Config{
		Threshold: cfg.Match.Threshold,
		Interval:  cfg.Match.Interval,
		Hasher:    hasher,
		Snapshots: snapshots,
	})

	app := &api.App{
		Roster:      roster.NewRepository(kv),
		Attendance:  store,
		Sweeper:     attendance.NewSweeper(store, publisher),
		Windows:     windows.NewStore(kv),
		Session:     sessions,
		Snapshots:   snapshots,
		Defaults:    cfg.Session,
		PingMessage: cfg.PingMessage,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Port)
		log.Printf("Database type: %s", cfg.DB.Type)
		if cfg.DB.Type == database.TypePostgres {
			log.Printf("Database connection: %s@%s:%d/%s", cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
		} else {
			log.Printf("Database path: %s", cfg.DB.SQLitePath)
		}
		log.Printf("Camera: %s (%s), hash: %s, threshold: %d", cam.Name(), cfg.Camera.Kind, hasher.Name(), cfg.Match.Threshold)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")

		if err := sessions.StopCamera(); err != nil {
			log.Printf("Camera stop failed: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return pruneSnapshots(gctx, snapshots, cfg.SnapshotRetention)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("Failed to notify systemd: %v", err)
	} else if sent {
		log.Printf("Notified systemd readiness")
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

// pruneSnapshots removes snapshot files older than retention once a day.
func pruneSnapshots(ctx context.Context, snapshots storage.Storage, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		removed, err := snapshots.Prune(time.Now().Add(-retention))
		if err != nil {
			log.Printf("Snapshot prune failed: %v", err)
		} else if removed > 0 {
			log.Printf("Pruned %d snapshots older than %s", removed, retention)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
