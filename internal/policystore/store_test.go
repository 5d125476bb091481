package policystore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const validDefinition = `
policies:
  - name: s3-block-public-access
    resource: s3
    actions:
      - type: set-public-block
`

type mockGetter struct {
	body string
	err  error

	key string
}

func (m *mockGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.key = *params.Key
	if m.err != nil {
		return nil, m.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(m.body))}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch_ReturnsDefinition(t *testing.T) {
	getter := &mockGetter{body: validDefinition}
	store := NewS3Store(getter, "policy-defs", "policies", discardLogger())

	def, err := store.Fetch(context.Background(), "s3-block-public-access")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if getter.key != "policies/s3-block-public-access.yml" {
		t.Fatalf("key = %q", getter.key)
	}
	if def.Name != "s3-block-public-access" {
		t.Fatalf("name = %q", def.Name)
	}
	if len(def.Body) == 0 {
		t.Fatalf("body empty")
	}
}

func TestFetch_NotFound(t *testing.T) {
	store := NewS3Store(&mockGetter{err: &s3types.NoSuchKey{}}, "policy-defs", "policies", discardLogger())

	_, err := store.Fetch(context.Background(), "s3-block-public-access")
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestFetch_OtherStoreError(t *testing.T) {
	store := NewS3Store(&mockGetter{err: errors.New("throttled")}, "policy-defs", "policies", discardLogger())

	_, err := store.Fetch(context.Background(), "any")
	if err == nil || errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected non-not-found error, got %v", err)
	}
}

func TestFetch_CorruptDefinition(t *testing.T) {
	cases := map[string]string{
		"not yaml":    "{{{{",
		"no policies": "policies: []\n",
		"unnamed":     "policies:\n  - resource: s3\n",
	}
	for name, body := range cases {
		store := NewS3Store(&mockGetter{body: body}, "policy-defs", "policies", discardLogger())
		_, err := store.Fetch(context.Background(), "broken")
		if !errors.Is(err, ErrPolicyCorrupt) {
			t.Fatalf("%s: expected ErrPolicyCorrupt, got %v", name, err)
		}
	}
}
