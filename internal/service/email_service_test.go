package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carecircle/internal/models"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestEmailServiceDisabled(t *testing.T) {
	s, err := NewEmailService(context.Background(), "us-east-1", "", "", nil)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())
	assert.NoError(t, s.SendAlertDigest(context.Background(), "m@example.com", "Morgan", []ItemView{{}}))
	assert.Nil(t, NewEmailAlertNotifier(nil, s))
}

func TestSendAlertDigest(t *testing.T) {
	client := &fakeSES{}
	s := &EmailService{client: client, fromEmail: "alerts@example.com", fromName: "CareCircle", enabled: true, logger: zap.NewNop()}

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	alerts := []ItemView{
		{Item: models.Item{ID: "a1", Kind: models.KindAlert, Description: "Fall <kitchen>", CreatedAt: &at}, SeniorName: "Walter"},
		{Item: models.Item{ID: "a2", Kind: models.KindAlert, Description: "Door open"}, SeniorName: "Rose"},
	}
	require.NoError(t, s.SendAlertDigest(context.Background(), "m@example.com", "Morgan", alerts))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "CareCircle <alerts@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"m@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "CareCircle: 2 new alerts", aws.ToString(in.Content.Simple.Subject.Data))

	html := aws.ToString(in.Content.Simple.Body.Html.Data)
	assert.Contains(t, html, "Fall &lt;kitchen&gt;")
	assert.Contains(t, html, "Walter")
	text := aws.ToString(in.Content.Simple.Body.Text.Data)
	assert.Contains(t, text, "- Rose: Door open\n")

	require.NoError(t, s.SendAlertDigest(context.Background(), "m@example.com", "Morgan", nil))
	assert.Len(t, client.inputs, 1, "nothing to send")

	client.err = errors.New("throttled")
	err := s.SendAlertDigest(context.Background(), "m@example.com", "Morgan", alerts[:1])
	assert.ErrorContains(t, err, "failed to send email to m@example.com")
}
