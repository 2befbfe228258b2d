package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/canopy-platform/directory-services/internal/appconfig"
	"github.com/canopy-platform/directory-services/models"
)

type MockEmailClient struct {
	mock.Mock
}

func (m *MockEmailClient) SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, input, opts)
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Company: appconfig.CompanyConfig{Name: "Canopy", Domain: "canopy.example"},
		AWS: appconfig.AWSConfig{
			FromEmail:     "noreply@canopy.example",
			HelpdeskEmail: "helpdesk@canopy.example",
		},
	}
}

func TestSendWelcomeEmployee(t *testing.T) {
	mockEmail := new(MockEmailClient)
	log := zerolog.Nop()
	n := New(mockEmail, testConfig(), &log)

	mockEmail.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).
		Return(&sesv2.SendEmailOutput{}, nil)

	user := models.User{
		Username:      "alice",
		Email:         "alice@canopy.example",
		FirstName:     "Alice",
		RecoveryEmail: "alice@personal.example",
	}
	err := n.SendWelcome(context.Background(), user)
	assert.NoError(t, err)

	mockEmail.AssertCalled(t, "SendEmail", mock.Anything, mock.MatchedBy(func(input *sesv2.SendEmailInput) bool {
		body := *input.Content.Simple.Body.Text.Data
		return input.Destination.ToAddresses[0] == "alice@personal.example" &&
			*input.FromEmailAddress == "noreply@canopy.example" &&
			strings.Contains(body, "Welcome to Canopy") &&
			strings.Contains(body, "alice@canopy.example")
	}), mock.Anything)
}

func TestSendWelcomeConsultant(t *testing.T) {
	mockEmail := new(MockEmailClient)
	log := zerolog.Nop()
	n := New(mockEmail, testConfig(), &log)

	mockEmail.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).
		Return(&sesv2.SendEmailOutput{}, nil)

	user := models.User{
		Username:     "carol",
		Email:        "carol@canopy.example",
		IsConsultant: true,
	}
	err := n.SendWelcome(context.Background(), user)
	assert.NoError(t, err)

	mockEmail.AssertCalled(t, "SendEmail", mock.Anything, mock.MatchedBy(func(input *sesv2.SendEmailInput) bool {
		body := *input.Content.Simple.Body.Text.Data
		// No recovery email on file, falls back to the work address.
		return input.Destination.ToAddresses[0] == "carol@canopy.example" &&
			strings.Contains(body, "your engagement") &&
			strings.Contains(body, "Hi carol")
	}), mock.Anything)
}

func TestSendWelcomeFailure(t *testing.T) {
	mockEmail := new(MockEmailClient)
	log := zerolog.Nop()
	n := New(mockEmail, testConfig(), &log)

	mockEmail.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).
		Return((*sesv2.SendEmailOutput)(nil), errors.New("ses throttled"))

	err := n.SendWelcome(context.Background(), models.User{Username: "bob", Email: "bob@canopy.example"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bob@canopy.example")
}
