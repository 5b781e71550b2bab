package tryon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tryonworks/broker/internal/artifacts"
	"github.com/tryonworks/broker/internal/job"
	"github.com/tryonworks/broker/internal/keys"
	"github.com/tryonworks/broker/internal/kling"
)

const completedText = "Image successfully generated and saved."

// Runner owns the job lifecycle: it mints the record, spawns one
// goroutine per job and is the only writer of that job's record. Jobs
// are one-shot: a failure at any step is terminal for that id.
type Runner struct {
	store   job.JobStore
	client  *kling.Client
	rotator *keys.Rotator
	fetcher *artifacts.Fetcher

	baseURL       string
	pollTimeout   time.Duration // zero means no deadline
	submitRetries int
}

type Options struct {
	BaseURL       string
	PollTimeout   time.Duration
	SubmitRetries int
}

func NewRunner(store job.JobStore, client *kling.Client, rotator *keys.Rotator, fetcher *artifacts.Fetcher, opts Options) *Runner {
	return &Runner{
		store:         store,
		client:        client,
		rotator:       rotator,
		fetcher:       fetcher,
		baseURL:       opts.BaseURL,
		pollTimeout:   opts.PollTimeout,
		submitRetries: opts.SubmitRetries,
	}
}

// StartJob creates a pending record and kicks off background
// execution, returning before any remote work happens.
func (r *Runner) StartJob(modelImg, dressImg string) *job.Job {
	j := job.New()
	r.store.Add(j)

	go r.run(j.ID, modelImg, dressImg)

	return j
}

func (r *Runner) run(jobID, modelImg, dressImg string) {
	ctx := context.Background()
	if r.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pollTimeout)
		defer cancel()
	}

	// One key per job, held for the job's whole lifetime.
	apiKey := r.rotator.Next()

	r.store.SetStatus(jobID, job.StatusProcessing)

	taskID, err := r.submit(ctx, modelImg, dressImg, apiKey)
	if err != nil {
		r.fail(jobID, err)
		return
	}
	r.store.SetExternalTask(jobID, taskID)

	result, err := r.client.PollUntilTerminal(ctx, taskID, apiKey)
	if err != nil {
		r.fail(jobID, err)
		return
	}

	name := jobID + ".png"
	relPath, err := r.fetcher.Fetch(ctx, result.ArtifactURL, name)
	if err != nil {
		r.fail(jobID, fmt.Errorf("failed to download the final image: %w", err))
		return
	}

	r.store.Complete(jobID, completedText, r.baseURL+relPath)
	log.Printf("Job %s completed, artifact at %s", jobID, relPath)
}

// submit is one-shot unless retries were configured explicitly.
func (r *Runner) submit(ctx context.Context, modelImg, dressImg, apiKey string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.submitRetries; attempt++ {
		taskID, err := r.client.Submit(ctx, modelImg, dressImg, apiKey)
		if err == nil {
			return taskID, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (r *Runner) fail(jobID string, err error) {
	log.Printf("Error in job %s: %v", jobID, err)
	r.store.Fail(jobID, err.Error())
}
