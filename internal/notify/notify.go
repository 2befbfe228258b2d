package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/internal/appconfig"
	"github.com/canopy-platform/directory-services/models"
)

// EmailClient abstracts the SES v2 client so services can be tested with mocks.
type EmailClient interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier sends onboarding email to newly provisioned users. Send failures
// are reported to the caller but are never grounds for failing a
// reconciliation unit.
type Notifier struct {
	Email  EmailClient
	Config *appconfig.Config
	Log    *zerolog.Logger
}

func New(email EmailClient, cfg *appconfig.Config, log *zerolog.Logger) *Notifier {
	return &Notifier{Email: email, Config: cfg, Log: log}
}

var employeeWelcome = template.Must(template.New("employee").Parse(`Hi {{.FirstName}},

Welcome to {{.Company}}! Your accounts have been provisioned.

Sign in at your identity portal with {{.Email}} and set up your password
and multi-factor authentication. Your GitHub, Google Workspace and other
service accounts follow the same username.

If anything does not work, reply to this email or contact {{.Helpdesk}}.

The {{.Company}} team
`))

var consultantWelcome = template.Must(template.New("consultant").Parse(`Hi {{.FirstName}},

An account has been provisioned for your work with {{.Company}}.

Sign in with {{.Email}}. Access is limited to the services your engagement
requires; contact {{.Helpdesk}} if something you need is missing.

The {{.Company}} team
`))

type welcomeData struct {
	FirstName string
	Email     string
	Company   string
	Helpdesk  string
}

// SendWelcome emails the user their onboarding instructions. Consultants get
// the external-collaborator variant.
func (n *Notifier) SendWelcome(ctx context.Context, user models.User) error {
	to := user.RecoveryEmail
	if to == "" {
		to = user.Email
	}

	data := welcomeData{
		FirstName: user.FirstName,
		Email:     user.Email,
		Company:   n.Config.Company.Name,
		Helpdesk:  n.Config.AWS.HelpdeskEmail,
	}
	if data.FirstName == "" {
		data.FirstName = user.Username
	}

	tmpl := employeeWelcome
	if user.IsConsultant {
		tmpl = consultantWelcome
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering welcome email: %w", err)
	}

	subject := fmt.Sprintf("Welcome to %s", n.Config.Company.Name)
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.Config.AWS.FromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body.String())},
				},
			},
		},
	}

	if _, err := n.Email.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending welcome email to %s: %w", to, err)
	}

	n.Log.Info().Str("username", user.Username).Str("to", to).Msg("sent welcome email")
	return nil
}
