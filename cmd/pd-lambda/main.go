// pd-lambda is the deployed form of the dispatcher: an AWS Lambda consuming
// SQS records whose bodies are EventBridge-wrapped event payloads. One
// Dispatch runs per record.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/devsec-ops/policy-dispatcher/internal/broker"
	"github.com/devsec-ops/policy-dispatcher/internal/config"
	"github.com/devsec-ops/policy-dispatcher/internal/dispatch"
	"github.com/devsec-ops/policy-dispatcher/internal/engine"
	"github.com/devsec-ops/policy-dispatcher/internal/mapping"
	"github.com/devsec-ops/policy-dispatcher/internal/policystore"
	"github.com/devsec-ops/policy-dispatcher/internal/providers/aws/common"
)

type handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// Handle processes each SQS record independently. Infrastructure failures
// (mapping document unavailable) are reported as batch item failures so SQS
// redelivers only the affected records; validation rejects are consumed —
// a malformed payload never gets healthier by retrying.
func (h *handler) Handle(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, record := range evt.Records {
		rep, err := h.dispatcher.Dispatch(ctx, []byte(record.Body))
		if err != nil {
			h.logger.Error("dispatch infrastructure failure",
				"message_id", record.MessageId, "error", err.Error())
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		h.logger.Info("record dispatched",
			"message_id", record.MessageId,
			"dispatch_id", rep.DispatchID,
			"status", rep.Status,
			"succeeded", rep.Succeeded,
			"failed", rep.Failed,
			"skipped", rep.Skipped,
		)
	}

	return resp, nil
}

// newHandler wires the dispatcher from environment configuration. It runs
// once per cold start; every invocation after that reuses the same clients
// but shares no per-dispatch state.
func newHandler(ctx context.Context) (*handler, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("configuration error", "error", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d error(s))", len(errs))
	}

	awsCfg, err := common.LoadConfig(ctx, cfg.DefaultRegion)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}
	clients := common.NewClientSet(awsCfg)

	d := dispatch.New(
		mapping.NewStoreSource(clients.S3, cfg.MappingBucket, cfg.MappingKey, logger),
		policystore.NewS3Store(clients.S3, cfg.PolicyBucket, cfg.PolicyPrefix, logger),
		broker.New(clients.STS, cfg.RoleName, cfg.ExternalIDTemplate, cfg.SessionDuration, logger),
		engine.NewCustodianEngine(cfg.EngineBinary, logger),
		dispatch.Options{DefaultRegion: cfg.DefaultRegion, DryRun: cfg.DryRun},
		logger,
	)

	return &handler{dispatcher: d, logger: logger}, nil
}

func main() {
	h, err := newHandler(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}
