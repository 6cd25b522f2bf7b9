package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/mail"
)

type captureMailer struct {
	messages []mail.Message
}

func (c *captureMailer) Send(_ context.Context, msg mail.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestOTPMailerRendersMessage(t *testing.T) {
	transport := &captureMailer{}
	mailer, err := NewOTPMailer(transport, "no-reply@notely.test", "")
	require.NoError(t, err)

	err = mailer.SendOTP(context.Background(), &models.User{Email: "olive@example.com", Name: "<Olive>"}, "042917", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, transport.messages, 1)

	msg := transport.messages[0]
	require.Equal(t, []string{"olive@example.com"}, msg.To)
	require.Equal(t, "no-reply@notely.test", msg.From)
	require.Equal(t, "Your OTP for Note Taking App", msg.Subject)
	require.Contains(t, msg.Text, "042917")
	require.Contains(t, msg.Text, "10 minutes")
	require.Contains(t, msg.HTML, "042917")
	require.Contains(t, msg.HTML, "&lt;Olive&gt;")
}

func TestOTPMailerFallsBackToEmailLocalPart(t *testing.T) {
	transport := &captureMailer{}
	mailer, err := NewOTPMailer(transport, "", "Notely")
	require.NoError(t, err)

	require.NoError(t, mailer.SendOTP(context.Background(), &models.User{Email: "pat@example.com"}, "123456", 5*time.Minute))
	require.Contains(t, transport.messages[0].Text, "Hi pat,")
	require.Contains(t, transport.messages[0].HTML, "Welcome to Notely!")

	require.Error(t, mailer.SendOTP(context.Background(), &models.User{}, "123456", time.Minute))
}

func TestNewOTPMailerRequiresTransport(t *testing.T) {
	_, err := NewOTPMailer(nil, "", "")
	require.Error(t, err)
}
