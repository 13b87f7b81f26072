package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESConfig configures the Amazon SES sender. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region          string
	Sender          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a sender address is configured.
func (c SESConfig) Enabled() bool {
	return c.Sender != ""
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers plain-text email through Amazon SES.
type SESSender struct {
	client sesAPI
	source string
}

// NewSESSender loads AWS configuration and returns a sender.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("ses sender address is not configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESSender{client: ses.NewFromConfig(awsCfg), source: cfg.Sender}, nil
}

func (s *SESSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.source),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
