package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/mail"
)

const otpSubject = "Your OTP for Note Taking App"

var otpHTMLTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #4F46E5;">Welcome to {{.AppName}}!</h2>
  <p>Hi {{.Name}},</p>
  <p>Your OTP for verification is:</p>
  <div style="background-color: #f3f4f6; padding: 20px; border-radius: 8px; text-align: center; margin: 20px 0;">
    <h1 style="color: #4F46E5; font-size: 32px; margin: 0;">{{.Code}}</h1>
  </div>
  <p>This OTP will expire in {{.Minutes}} minutes.</p>
  <p>If you didn't request this, please ignore this email.</p>
  <p>Best regards,<br>{{.AppName}} Team</p>
</div>`))

type otpEmailData struct {
	AppName string
	Name    string
	Code    string
	Minutes int
}

// OTPMailer renders and sends one-time code emails.
type OTPMailer struct {
	mailer  mail.Mailer
	from    string
	appName string
}

// NewOTPMailer constructs an OTPMailer. An empty from address defers to the transport default.
func NewOTPMailer(mailer mail.Mailer, from, appName string) (*OTPMailer, error) {
	if mailer == nil {
		return nil, errors.New("otp mailer: mailer is required")
	}
	if strings.TrimSpace(appName) == "" {
		appName = "Note Taking App"
	}
	return &OTPMailer{mailer: mailer, from: strings.TrimSpace(from), appName: appName}, nil
}

// SendOTP emails code to user.
func (m *OTPMailer) SendOTP(ctx context.Context, user *models.User, code string, ttl time.Duration) error {
	if user == nil || user.Email == "" {
		return errors.New("otp mailer: recipient is required")
	}

	data := otpEmailData{
		AppName: m.appName,
		Name:    displayName(user),
		Code:    code,
		Minutes: int(ttl.Round(time.Minute) / time.Minute),
	}

	var html bytes.Buffer
	if err := otpHTMLTemplate.Execute(&html, data); err != nil {
		return fmt.Errorf("otp mailer: render: %w", err)
	}

	text := fmt.Sprintf("Hi %s,\r\n\r\nYour OTP for verification is: %s\r\n\r\nThis OTP will expire in %d minutes.\r\nIf you didn't request this, please ignore this email.\r\n",
		data.Name, data.Code, data.Minutes)

	return m.mailer.Send(ctx, mail.Message{
		From:    m.from,
		To:      []string{user.Email},
		Subject: otpSubject,
		Text:    text,
		HTML:    html.String(),
	})
}

func displayName(user *models.User) string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	if at := strings.IndexByte(user.Email, '@'); at > 0 {
		return user.Email[:at]
	}
	return user.Email
}
