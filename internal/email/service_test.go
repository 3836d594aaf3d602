package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	messages []*gomail.Message
	err      error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, m...)
	return nil
}

func TestSendRegistrationEmail(t *testing.T) {
	dialer := &fakeDialer{}
	svc := NewService(dialer, "noreply@example.com", "https://api.example", "https://app.example")

	err := svc.SendRegistrationEmail(context.Background(), Recipient{Email: "ann@x.com", Name: "Ann", Token: "tok123"})
	require.NoError(t, err)

	require.Len(t, dialer.messages, 1)
	m := dialer.messages[0]
	assert.Equal(t, []string{"noreply@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"ann@x.com"}, m.GetHeader("To"))

	var raw bytes.Buffer
	_, err = m.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "Subject: Welcome! Please confirm your email")
}

func TestSendEmailPropagatesDialerError(t *testing.T) {
	svc := NewService(&fakeDialer{err: errors.New("connection refused")}, "from@x.com", "http://a", "http://b")

	err := svc.SendForgotPasswordEmail(context.Background(), Recipient{Email: "ann@x.com", Name: "Ann", Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRegistrationTemplateContainsNameAndLink(t *testing.T) {
	svc := NewService(&fakeDialer{}, "from@x.com", "https://api.example", "https://app.example")

	body, err := renderTemplate(registrationTemplate, templateData{Name: "Ann", Link: svc.verificationLink("tok123")})
	require.NoError(t, err)

	assert.Contains(t, body, "Welcome, Ann!")
	assert.Contains(t, body, "https://api.example/auth/verify?token=tok123")
}

func TestForgotPasswordTemplateContainsNameAndLink(t *testing.T) {
	svc := NewService(&fakeDialer{}, "from@x.com", "https://api.example", "https://app.example")

	body, err := renderTemplate(forgotPasswordTemplate, templateData{Name: "Ann", Link: svc.resetLink("tok456")})
	require.NoError(t, err)

	assert.Contains(t, body, "Hi Ann,")
	assert.Contains(t, body, "https://app.example/reset-password?token=tok456")
}

func TestTemplateEscapesName(t *testing.T) {
	body, err := renderTemplate(registrationTemplate, templateData{Name: "<script>", Link: "https://api.example"})
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}
