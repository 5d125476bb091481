// Package broker exchanges the dispatcher's local identity for temporary,
// scoped credentials in a target account.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/devsec-ops/policy-dispatcher/internal/models"
)

// ErrCredentialUnavailable marks a failed trust exchange. It is fatal for
// the affected account's branch only; sibling accounts in the same dispatch
// are unaffected.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// STSClient is the subset of STS operations the broker uses.
type STSClient interface {
	AssumeRole(
		ctx context.Context,
		params *sts.AssumeRoleInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleOutput, error)
}

// accountToken is the placeholder expanded to the target account identifier
// in the role-name and external-ID templates.
const accountToken = "{account_id}"

// Broker mints per-dispatch credential grants. It holds no state between
// calls and never caches credentials.
type Broker struct {
	client     STSClient
	roleName   string
	externalID string
	duration   time.Duration
	logger     *slog.Logger
}

// New returns a Broker assuming roleName in target accounts with the given
// external-ID template. Both templates may contain "{account_id}".
// A non-positive duration falls back to 15 minutes, matching the engine's
// typical execution window.
func New(client STSClient, roleName, externalIDTemplate string, duration time.Duration, logger *slog.Logger) *Broker {
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return &Broker{
		client:     client,
		roleName:   roleName,
		externalID: externalIDTemplate,
		duration:   duration,
		logger:     logger,
	}
}

// Assume exchanges the local identity for a grant in targetAccount.
//
// It fails closed: every trust-exchange error (access denied, role missing,
// rejected external ID) wraps ErrCredentialUnavailable with the service
// error code attached so the reason survives into execution results.
func (b *Broker) Assume(ctx context.Context, targetAccount string) (*models.CredentialGrant, error) {
	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", targetAccount, expand(b.roleName, targetAccount))
	externalID := expand(b.externalID, targetAccount)
	sessionName := "policy-dispatch-" + uuid.NewString()[:8]

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		ExternalId:      aws.String(externalID),
		DurationSeconds: aws.Int32(int32(b.duration / time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: assume %s (%s)", ErrCredentialUnavailable, roleARN, errorCode(err))
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("%w: assume %s returned no credentials", ErrCredentialUnavailable, roleARN)
	}

	creds := out.Credentials
	grant := &models.CredentialGrant{
		TargetAccountID: targetAccount,
		RoleARN:         roleARN,
		ExternalID:      externalID,
		SessionName:     sessionName,
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
	}
	if creds.Expiration != nil {
		grant.Expiry = *creds.Expiration
	}

	b.logger.Debug("credential grant minted",
		"account", targetAccount, "role_arn", roleARN, "session", sessionName, "expiry", grant.Expiry)
	return grant, nil
}

// expand substitutes the account token in a template.
func expand(template, accountID string) string {
	return strings.ReplaceAll(template, accountToken, accountID)
}

// errorCode extracts the AWS service error code when err is an API error,
// otherwise the raw error text.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return err.Error()
}
