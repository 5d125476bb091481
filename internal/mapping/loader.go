package mapping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// Parse decodes and version-gates a mapping document. Nil maps are
// initialised so lookups never nil-check.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping document: %w", err)
	}

	if doc.Version != 1 {
		return nil, errors.New("unsupported mapping document version")
	}

	if doc.Accounts == nil {
		doc.Accounts = make(map[string]AccountEntry)
	}

	return &doc, nil
}

// Load reads and parses a mapping document from a local file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Source supplies the current mapping document for a dispatch. Changes to
// the underlying document take effect on the next Fetch; there is no push
// mechanism.
type Source interface {
	Fetch(ctx context.Context) (*Document, error)
}

// ObjectGetter is the subset of S3 operations the store-backed source uses.
type ObjectGetter interface {
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// StoreSource fetches the mapping document from an object store key.
type StoreSource struct {
	client ObjectGetter
	bucket string
	key    string
	logger *slog.Logger
}

// NewStoreSource returns a Source reading bucket/key via client.
func NewStoreSource(client ObjectGetter, bucket, key string, logger *slog.Logger) *StoreSource {
	return &StoreSource{client: client, bucket: bucket, key: key, logger: logger}
}

// Fetch downloads, parses, and validates the document. Any semantic
// validation error fails the fetch: a half-broken routing table must not
// silently route events.
func (s *StoreSource) Fetch(ctx context.Context) (*Document, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch mapping s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read mapping s3://%s/%s: %w", s.bucket, s.key, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if errs := Validate(doc); len(errs) > 0 {
		return nil, fmt.Errorf("mapping document invalid: %w", errors.Join(errs...))
	}

	s.logger.Debug("mapping document fetched",
		"bucket", s.bucket, "key", s.key, "accounts", len(doc.Accounts))
	return doc, nil
}

// FileSource reads the mapping document from a local path on every Fetch.
// Used by the CLI; the Lambda always reads from the object store.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(ctx context.Context) (*Document, error) {
	doc, err := Load(f.Path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(doc); len(errs) > 0 {
		return nil, fmt.Errorf("mapping document invalid: %w", errors.Join(errs...))
	}
	return doc, nil
}
