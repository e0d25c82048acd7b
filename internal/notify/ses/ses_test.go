package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
)

// fakeSESClient captures the SendEmail input and returns a scripted
// response.
type fakeSESClient struct {
	in    *sesv2.SendEmailInput
	out   *sesv2.SendEmailOutput
	err   error
	calls int
}

func (f *fakeSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.calls++
	f.in = params
	return f.out, f.err
}

func TestSendEmail_Success(t *testing.T) {
	t.Parallel()

	client := &fakeSESClient{
		out: &sesv2.SendEmailOutput{MessageId: aws.String("0100018d-abc")},
	}
	p := newWithClient("noreply@agency.example", client)

	res := p.SendEmail(context.Background(), "staff@agency.example", "[HIGH] New Callback: Bob", "<p>hi</p>", "hi")

	if !res.Success || res.Provider != "ses" || res.MessageID != "0100018d-abc" {
		t.Fatalf("result = %+v, want ses success with message ID", res)
	}

	in := client.in
	if aws.ToString(in.FromEmailAddress) != "noreply@agency.example" {
		t.Errorf("from = %q", aws.ToString(in.FromEmailAddress))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "staff@agency.example" {
		t.Errorf("to = %v", in.Destination.ToAddresses)
	}
	msg := in.Content.Simple
	if aws.ToString(msg.Subject.Data) != "[HIGH] New Callback: Bob" {
		t.Errorf("subject = %q", aws.ToString(msg.Subject.Data))
	}
	if aws.ToString(msg.Body.Html.Data) != "<p>hi</p>" || aws.ToString(msg.Body.Text.Data) != "hi" {
		t.Errorf("body = html %q, text %q", aws.ToString(msg.Body.Html.Data), aws.ToString(msg.Body.Text.Data))
	}
	if aws.ToString(msg.Subject.Charset) != "UTF-8" {
		t.Errorf("subject charset = %q, want UTF-8", aws.ToString(msg.Subject.Charset))
	}
}

func TestSendEmail_NotConfigured(t *testing.T) {
	t.Parallel()

	client := &fakeSESClient{}

	// Missing sender address.
	p := newWithClient("", client)
	res := p.SendEmail(context.Background(), "staff@agency.example", "s", "<p>h</p>", "t")
	if res.Success || res.Error != "not configured" {
		t.Errorf("result = %+v, want not-configured failure", res)
	}

	// Missing client.
	p = &Provider{fromEmail: "noreply@agency.example"}
	res = p.SendEmail(context.Background(), "staff@agency.example", "s", "<p>h</p>", "t")
	if res.Success || res.Error != "not configured" {
		t.Errorf("result = %+v, want not-configured failure", res)
	}

	if client.calls != 0 {
		t.Errorf("client was called %d times despite missing configuration", client.calls)
	}
}

func TestSendEmail_APIError(t *testing.T) {
	t.Parallel()

	client := &fakeSESClient{
		err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified"},
	}
	p := newWithClient("noreply@agency.example", client)

	res := p.SendEmail(context.Background(), "staff@agency.example", "s", "<p>h</p>", "t")
	if res.Success {
		t.Fatalf("result = %+v, want failure", res)
	}
	if !strings.Contains(res.Error, "MessageRejected") || !strings.Contains(res.Error, "not verified") {
		t.Errorf("error = %q, want AWS code and message", res.Error)
	}
}

func TestSendEmail_PlainError(t *testing.T) {
	t.Parallel()

	client := &fakeSESClient{err: errors.New("dial tcp: connection refused")}
	p := newWithClient("noreply@agency.example", client)

	res := p.SendEmail(context.Background(), "staff@agency.example", "s", "<p>h</p>", "t")
	if res.Success || !strings.Contains(res.Error, "connection refused") {
		t.Errorf("result = %+v, want transport failure", res)
	}
}

func TestSendEmail_EmptyRecipient(t *testing.T) {
	t.Parallel()

	client := &fakeSESClient{}
	p := newWithClient("noreply@agency.example", client)

	res := p.SendEmail(context.Background(), "", "s", "<p>h</p>", "t")
	if res.Success || !strings.Contains(res.Error, "recipient") {
		t.Errorf("result = %+v, want recipient failure", res)
	}
	if client.calls != 0 {
		t.Error("client was called despite empty recipient")
	}
}
