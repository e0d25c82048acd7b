// Package ses delivers staff email through Amazon SES (the v2 API).
package ses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/MrWong99/vocepta/internal/notify"
)

const providerName = "ses"

// sesSendAPI abstracts the SES client method used here, for testability.
type sesSendAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends email via Amazon SES using the default AWS credential
// chain.
type Provider struct {
	fromEmail string
	client    sesSendAPI
}

var _ notify.EmailProvider = (*Provider)(nil)

// New creates an SES provider in the given region sending from fromEmail.
func New(ctx context.Context, region, fromEmail string) (*Provider, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return &Provider{
		fromEmail: fromEmail,
		client:    sesv2.NewFromConfig(awsCfg),
	}, nil
}

// newWithClient creates a Provider with an injected client (for testing).
func newWithClient(fromEmail string, client sesSendAPI) *Provider {
	return &Provider{fromEmail: fromEmail, client: client}
}

// SendEmail sends a simple-content message with both HTML and text parts.
func (p *Provider) SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) notify.Result {
	res := notify.Result{Provider: providerName}

	if p.client == nil || p.fromEmail == "" {
		res.Error = "not configured"
		return res
	}
	if strings.TrimSpace(to) == "" {
		res.Error = "recipient email required"
		return res
	}

	out, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.fromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Html: &sestypes.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &sestypes.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	})
	if err != nil {
		res.Error = errorMessage(err)
		return res
	}

	res.Success = true
	res.MessageID = aws.ToString(out.MessageId)
	return res
}

// errorMessage keeps the AWS error code visible in the recorded outcome.
func errorMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}
