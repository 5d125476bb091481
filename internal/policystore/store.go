// Package policystore fetches named policy definitions from an external
// object store. Definitions are opaque engine artifacts; the store only
// verifies they are structurally loadable before handing them on.
package policystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// ErrPolicyNotFound marks a policy name with no definition in the store.
// The orchestrator records it as a skipped result, never a batch failure.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrPolicyCorrupt marks a definition that exists but cannot be loaded.
var ErrPolicyCorrupt = errors.New("policy definition corrupt")

// Store fetches policy definitions by name.
type Store interface {
	Fetch(ctx context.Context, name string) (*models.PolicyDefinition, error)
}

// ObjectGetter is the subset of S3 operations the store uses.
type ObjectGetter interface {
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// S3Store reads definitions from <bucket>/<prefix>/<name>.yml.
type S3Store struct {
	client ObjectGetter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Store returns a Store reading from bucket under prefix via client.
func NewS3Store(client ObjectGetter, bucket, prefix string, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// definitionDoc is the minimal structure every loadable definition must
// have in the engine's native format: a policies list with named entries.
type definitionDoc struct {
	Policies []struct {
		Name string `yaml:"name"`
	} `yaml:"policies"`
}

// Fetch implements Store. A missing object maps to ErrPolicyNotFound; an
// object that is not a loadable definition maps to ErrPolicyCorrupt. Both
// wrap enough detail for the execution result's reason field.
func (s *S3Store) Fetch(ctx context.Context, name string) (*models.PolicyDefinition, error) {
	key := path.Join(s.prefix, name+".yml")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %q (s3://%s/%s)", ErrPolicyNotFound, name, s.bucket, key)
		}
		return nil, fmt.Errorf("fetch policy %q: %w", name, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read policy %q: %w", name, err)
	}

	if err := checkDefinition(body); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPolicyCorrupt, name, err)
	}

	s.logger.Debug("policy definition fetched", "policy", name, "bytes", len(body))
	return &models.PolicyDefinition{Name: name, Body: body}, nil
}

// checkDefinition sanity-parses body as an engine definition document.
// It does not interpret filters or actions; those belong to the engine.
func checkDefinition(body []byte) error {
	var doc definitionDoc
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return err
	}
	if len(doc.Policies) == 0 {
		return errors.New("no policies declared")
	}
	for i, p := range doc.Policies {
		if p.Name == "" {
			return fmt.Errorf("policies[%d] has no name", i)
		}
	}
	return nil
}
