package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"sportsdatalake/internal/app"
	"sportsdatalake/internal/config"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/pipeline"
)

type handler struct {
	cfg  *config.Config
	opts []app.Option
}

// handle runs the pipeline once per scheduled event. Lambda already ships
// stderr to CloudWatch, so the console log provider is always used.
func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) (*pipeline.Report, error) {
	cfg := *h.cfg
	cfg.Observability.LogProvider = "console"

	a, err := app.Build(ctx, &cfg, h.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("%v", err)
		}
	}()

	a.Logger.Info(observability.WithRunID(ctx, a.RunID), "Scheduled invocation", observability.Fields{
		"event_id":    event.ID,
		"source":      event.Source,
		"detail_type": event.DetailType,
	})
	return a.Run(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	h := &handler{cfg: cfg}
	lambda.Start(h.handle)
}
