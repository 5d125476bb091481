package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/devsec-ops/policy-dispatcher/internal/providers/aws/common"
)

type mockSTS struct {
	identityErr error
	accountID   string
}

func (m *mockSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	return nil, errors.New("not used by doctor")
}

func (m *mockSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if m.identityErr != nil {
		return nil, m.identityErr
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(m.accountID)}, nil
}

type mockEC2 struct {
	regions []string
	err     error
}

func (m *mockEC2) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range m.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

func healthyClients() *common.ClientSet {
	return &common.ClientSet{
		STS: &mockSTS{accountID: "111111111111"},
		EC2: &mockEC2{regions: []string{"us-east-1", "eu-west-1"}},
	}
}

func TestCollectDoctorResult_Healthy(t *testing.T) {
	result := collectDoctorResult(context.Background(), healthyClients(), "us-east-1")

	if !result.AWS.Credentials {
		t.Fatalf("credentials check failed: %+v", result.AWS)
	}
	if result.AWS.AccountID != "111111111111" {
		t.Fatalf("account = %q", result.AWS.AccountID)
	}
	if !result.AWS.RegionOK {
		t.Fatalf("region check failed: %+v", result.AWS)
	}
	if !result.OverallHealthy {
		t.Fatalf("expected healthy result: %+v", result)
	}
}

func TestCollectDoctorResult_NoCredentials(t *testing.T) {
	clients := &common.ClientSet{
		STS: &mockSTS{identityErr: errors.New("no credential providers")},
		EC2: &mockEC2{},
	}

	result := collectDoctorResult(context.Background(), clients, "us-east-1")

	if result.AWS.Credentials || result.OverallHealthy {
		t.Fatalf("expected unhealthy result: %+v", result)
	}
	if result.AWS.Error == "" {
		t.Fatalf("error detail missing")
	}
}

func TestCollectDoctorResult_RegionNotEnabled(t *testing.T) {
	result := collectDoctorResult(context.Background(), healthyClients(), "ap-south-2")

	if result.AWS.RegionOK || result.OverallHealthy {
		t.Fatalf("expected region failure: %+v", result)
	}
	if !strings.Contains(result.AWS.Error, "not enabled") {
		t.Fatalf("error = %q", result.AWS.Error)
	}
}

func TestRunDoctor_JSONOutput(t *testing.T) {
	var buf strings.Builder
	result, err := runDoctor(context.Background(), healthyClients(), "us-east-1", &buf, "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OverallHealthy {
		t.Fatalf("expected healthy result")
	}
	if !strings.Contains(buf.String(), `"overall_healthy":true`) {
		t.Fatalf("json output = %q", buf.String())
	}
}

func TestRenderDoctorTable(t *testing.T) {
	var result DoctorResult
	result.AWS.Credentials = true
	result.AWS.AccountID = "111111111111"
	result.AWS.RegionOK = true

	var buf strings.Builder
	renderDoctorTable(result, &buf)
	out := buf.String()

	for _, want := range []string{"Environment Diagnostics", "Credentials: OK", "Account: 111111111111", "Not found (optional)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
