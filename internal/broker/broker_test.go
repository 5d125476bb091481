package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
)

type mockSTS struct {
	out *sts.AssumeRoleOutput
	err error

	input *sts.AssumeRoleInput
}

func (m *mockSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	m.input = params
	return m.out, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAssume_MintsGrant(t *testing.T) {
	expiry := time.Now().Add(15 * time.Minute).UTC()
	client := &mockSTS{out: &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIAEXAMPLE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      &expiry,
		},
	}}

	b := New(client, "SecurityRemediation", "remediation-{account_id}", 15*time.Minute, discardLogger())

	grant, err := b.Assume(context.Background(), "333333333333")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if grant.RoleARN != "arn:aws:iam::333333333333:role/SecurityRemediation" {
		t.Fatalf("role arn = %q", grant.RoleARN)
	}
	if grant.ExternalID != "remediation-333333333333" {
		t.Fatalf("external id = %q, want account token expanded", grant.ExternalID)
	}
	if grant.AccessKeyID != "AKIAEXAMPLE" || grant.SessionToken != "token" {
		t.Fatalf("credentials not carried into grant")
	}
	if !grant.Expiry.Equal(expiry) {
		t.Fatalf("expiry = %v, want %v", grant.Expiry, expiry)
	}

	if got := aws.ToString(client.input.ExternalId); got != "remediation-333333333333" {
		t.Fatalf("external id sent = %q", got)
	}
	if got := aws.ToInt32(client.input.DurationSeconds); got != 900 {
		t.Fatalf("duration seconds = %d, want 900", got)
	}
	if !strings.HasPrefix(aws.ToString(client.input.RoleSessionName), "policy-dispatch-") {
		t.Fatalf("session name = %q", aws.ToString(client.input.RoleSessionName))
	}
}

func TestAssume_TrustExchangeRejected(t *testing.T) {
	client := &mockSTS{err: &smithy.GenericAPIError{
		Code:    "AccessDenied",
		Message: "external ID does not match",
	}}

	b := New(client, "SecurityRemediation", "remediation-{account_id}", 15*time.Minute, discardLogger())

	_, err := b.Assume(context.Background(), "333333333333")
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("error code not surfaced: %v", err)
	}
}

func TestAssume_NoCredentialsInResponse(t *testing.T) {
	client := &mockSTS{out: &sts.AssumeRoleOutput{}}
	b := New(client, "SecurityRemediation", "remediation", 15*time.Minute, discardLogger())

	_, err := b.Assume(context.Background(), "333333333333")
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestNew_DefaultsDuration(t *testing.T) {
	client := &mockSTS{out: &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("k"),
			SecretAccessKey: aws.String("s"),
			SessionToken:    aws.String("t"),
		},
	}}

	b := New(client, "Role", "ext", 0, discardLogger())
	if _, err := b.Assume(context.Background(), "111111111111"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToInt32(client.input.DurationSeconds); got != 900 {
		t.Fatalf("duration seconds = %d, want 15m default", got)
	}
}
