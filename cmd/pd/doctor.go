package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/devsec-ops/policy-dispatcher/internal/mapping"
	"github.com/devsec-ops/policy-dispatcher/internal/providers/aws/common"
)

// doctorMappingPath is the optional local mapping document doctor validates.
const doctorMappingPath = "./accounts.yml"

// DoctorResult is the structured output of pd doctor. It can be serialised
// to JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	AWS struct {
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		RegionOK    bool   `json:"region_ok"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Mapping struct {
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"mapping"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			region, _ := cmd.Flags().GetString("region")

			awsCfg, err := common.LoadConfig(context.Background(), region)
			if err != nil {
				return fmt.Errorf("load AWS configuration: %w", err)
			}

			result, err := runDoctor(
				context.Background(),
				common.NewClientSet(awsCfg),
				awsCfg.Region,
				cmd.OutOrStdout(),
				format,
			)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main.go's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("region", "", "Region to validate (default: credential chain region)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy.
func runDoctor(ctx context.Context, clients *common.ClientSet, region string, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, clients, region)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. It performs no rendering; callers decide presentation.
func collectDoctorResult(ctx context.Context, clients *common.ClientSet, region string) DoctorResult {
	var result DoctorResult

	// AWS: credentials → STS identity → region validity.
	identity, err := clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = aws.ToString(identity.Account)

		regions, regionErr := clients.EC2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
			AllRegions: aws.Bool(false),
		})
		switch {
		case regionErr != nil:
			result.AWS.Error = regionErr.Error()
		case regionEnabled(regions, region):
			result.AWS.RegionOK = true
		default:
			result.AWS.Error = fmt.Sprintf("region %q is not enabled for this account", region)
		}
	}

	// Mapping: stat → load → validate (file is optional).
	_, statErr := os.Stat(doctorMappingPath)
	if statErr == nil {
		result.Mapping.Present = true
		doc, loadErr := mapping.Load(doctorMappingPath)
		if loadErr != nil {
			result.Mapping.Errors = []string{loadErr.Error()}
		} else {
			errs := mapping.Validate(doc)
			if len(errs) == 0 {
				result.Mapping.Valid = true
			} else {
				for _, e := range errs {
					result.Mapping.Errors = append(result.Mapping.Errors, e.Error())
				}
			}
		}
	} else if !os.IsNotExist(statErr) {
		// Stat error other than "not found" — treat as present but unreadable.
		result.Mapping.Present = true
		result.Mapping.Errors = []string{statErr.Error()}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionOK &&
		(!result.Mapping.Present || result.Mapping.Valid)

	return result
}

// regionEnabled reports whether region appears in the DescribeRegions output.
func regionEnabled(out *ec2.DescribeRegionsOutput, region string) bool {
	for _, r := range out.Regions {
		if aws.ToString(r.RegionName) == region {
			return true
		}
	}
	return false
}

// renderDoctorTable writes the human-readable diagnostic output to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nAWS:")
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Region", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.RegionOK {
			doctorPrint(w, "Region", "OK", "")
		} else {
			doctorPrint(w, "Region", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nMapping:")
	if !result.Mapping.Present {
		doctorPrint(w, "accounts.yml present", "Not found (optional)", "")
	} else {
		doctorPrint(w, "accounts.yml present", "YES", "")
		if result.Mapping.Valid {
			doctorPrint(w, "Mapping valid", "OK", "")
		} else {
			for _, e := range result.Mapping.Errors {
				doctorPrint(w, "Mapping valid", "FAIL", e)
			}
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
