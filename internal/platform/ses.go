package platform

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAdapter maintains the AWS SES account-level suppression list for
// tenants that relay through SES. Warmup and campaign membership are not SES
// concepts, so those operations report ErrNotSupported and callers fall back
// to log-only behavior.
type SESAdapter struct {
	client *sesv2.Client
	region string
}

// NewSESAdapter creates the adapter with static credentials.
func NewSESAdapter(ctx context.Context, region, accessKey, secretKey string) (*SESAdapter, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESAdapter{
		client: sesv2.NewFromConfig(awsCfg),
		region: region,
	}, nil
}

// Name identifies the platform.
func (a *SESAdapter) Name() string { return "ses" }

// RemoveMailboxFromCampaigns is not an SES concept.
func (a *SESAdapter) RemoveMailboxFromCampaigns(ctx context.Context, externalMailboxID string) error {
	return ErrNotSupported
}

// ConfigureWarmup is not an SES concept.
func (a *SESAdapter) ConfigureWarmup(ctx context.Context, externalMailboxID string, s WarmupSettings) error {
	return ErrNotSupported
}

// SuppressRecipient adds the address to the SES account-level suppression
// list. Bounce-driven suppressions use the BOUNCE reason; everything else
// (spam, unsubscribe) maps to COMPLAINT.
func (a *SESAdapter) SuppressRecipient(ctx context.Context, email, reason string) error {
	sesReason := sestypes.SuppressionListReasonComplaint
	if reason == "bounce" || reason == "bounce_threshold" {
		sesReason = sestypes.SuppressionListReasonBounce
	}

	_, err := a.client.PutSuppressedDestination(ctx, &sesv2.PutSuppressedDestinationInput{
		EmailAddress: aws.String(email),
		Reason:       sesReason,
	})
	if err != nil {
		return fmt.Errorf("ses: suppress %s: %w", email, err)
	}
	return nil
}
