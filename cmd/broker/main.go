package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tryonworks/broker/internal/api"
	"github.com/tryonworks/broker/internal/artifacts"
	"github.com/tryonworks/broker/internal/config"
	"github.com/tryonworks/broker/internal/job"
	"github.com/tryonworks/broker/internal/keys"
	"github.com/tryonworks/broker/internal/kling"
	"github.com/tryonworks/broker/internal/tryon"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	rotator, err := keys.NewRotator(cfg.APIKeys)
	if err != nil {
		log.Fatalf("Credential error: %v", err)
	}
	log.Printf("Loaded %d API key(s)", rotator.Size())

	var jobStore job.JobStore = job.NewStore()
	if cfg.DataDir != "" {
		ps, err := job.NewPersistentStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("Job store error: %v", err)
		}
		defer ps.Close()
		jobStore = ps
		log.Printf("Using persistent job store in %s", cfg.DataDir)
	}

	artifactStore, err := artifacts.NewStore(cfg.StaticDir)
	if err != nil {
		log.Fatalf("Artifact store error: %v", err)
	}

	client := kling.NewClient(cfg.APIURL, cfg.PollInterval)
	runner := tryon.NewRunner(jobStore, client, rotator, artifacts.NewFetcher(artifactStore), tryon.Options{
		BaseURL:       cfg.BaseURL,
		PollTimeout:   cfg.PollTimeout,
		SubmitRetries: cfg.SubmitRetries,
	})

	router := api.NewRouter(runner, jobStore, artifactStore)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
