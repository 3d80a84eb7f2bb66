package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

// sesAPI is the slice of the SES v2 client Send needs.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends through AWS SES v2 with simple (non-templated) content.
type SESMailer struct {
	client  sesAPI
	timeout time.Duration
}

// NewSESMailer builds the SES client. Static credentials from the
// config win; otherwise the default chain (env, profile, IAM role)
// applies.
func NewSESMailer(ctx context.Context, cfg config.EmailConfig) (*SESMailer, error) {
	region := cfg.SES.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.SES.AccessKey != "" && cfg.SES.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SES.AccessKey, cfg.SES.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SES: %w", err)
	}

	return &SESMailer{
		client:  sesv2.NewFromConfig(awsCfg),
		timeout: transportTimeout(cfg),
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg *Message) error {
	if m.client == nil {
		return fmt.Errorf("SES client not initialized")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	utf8 := func(s string) *types.Content {
		return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.fromHeader()),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8(msg.Subject),
				Body:    &types.Body{Html: utf8(msg.HTML)},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = utf8(msg.Text)
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send: %w", err)
	}
	return nil
}
