package kenmon

import (
	"bytes"
	"context"
	"errors"
	htmltemplate "html/template"
	"log"
	"time"

	texttemplate "text/template"

	"github.com/google/uuid"
)

// AuthTypeEmailOTP is the identifier type produced by the email OTP authenticator
const AuthTypeEmailOTP = "email-otp"

// DefaultOTPTTL is how long an OTP stays redeemable (5 minutes)
const DefaultOTPTTL = 5 * time.Minute

// DefaultOTPLength is the number of digits in a generated code
const DefaultOTPLength = 6

const defaultOTPSubject = "Your verification code"

const defaultOTPTextTemplate = `Your verification code is {{.Code}}.

Signature: {{.Signature}}

The code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.`

const defaultOTPHTMLTemplate = `<p>Your verification code is <strong>{{.Code}}</strong>.</p>
<p>Signature: <em>{{.Signature}}</em></p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.</p>`

// SendOTPResult is what the client needs to complete verification.
// The code itself is only ever delivered over email.
type SendOTPResult struct {
	OTPID     string `json:"otpId"`
	Signature string `json:"signature"`
}

// VerifyOTPRequest identifies the OTP being redeemed
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTPID string `json:"otpId"`
	Code  string `json:"code"`
}

// EmailOTP issues and redeems short numeric codes bound to an email
// address. Codes are single-use: redemption flips the store-side used
// latch with an atomic conditional write.
type EmailOTP struct {
	Store  OTPStore
	Mailer Mailer

	// From is the sender address on outgoing mail
	From string

	// TTL is the code lifetime. Defaults to 5 minutes.
	TTL time.Duration

	// Length is the number of code digits. Defaults to 6.
	Length int

	// Subject and templates for the outgoing email. The templates receive
	// {{.Code}}, {{.Signature}} and {{.Minutes}}.
	Subject      string
	TextTemplate string
	HTMLTemplate string
}

// EnsureDefaults fills in default values for any unset fields
func (e *EmailOTP) EnsureDefaults() *EmailOTP {
	if e.TTL <= 0 {
		e.TTL = DefaultOTPTTL
	}
	if e.Length <= 0 {
		e.Length = DefaultOTPLength
	}
	if e.Subject == "" {
		e.Subject = defaultOTPSubject
	}
	if e.TextTemplate == "" {
		e.TextTemplate = defaultOTPTextTemplate
	}
	if e.HTMLTemplate == "" {
		e.HTMLTemplate = defaultOTPHTMLTemplate
	}
	return e
}

// SendOTP generates a code and signature for the email address, persists
// the OTP row, and dispatches the email. The returned result carries what
// the client needs to complete verification - never the code.
func (e *EmailOTP) SendOTP(email string) (*SendOTPResult, error) {
	e.EnsureDefaults()
	if email == "" {
		return nil, NewAuthError(ErrCodeInternal, "email is required")
	}

	code, err := GenerateNumericCode(e.Length)
	if err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to generate code", err)
	}
	signature, err := GenerateOTPSignature()
	if err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to generate signature", err)
	}

	otp := &OTP{
		ID:        uuid.NewString(),
		Email:     email,
		Code:      code,
		Signature: signature,
		ExpiresAt: time.Now().Add(e.TTL),
		CreatedAt: time.Now(),
	}
	if err := e.Store.CreateOTP(otp); err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to persist otp", err)
	}

	if err := e.sendEmail(otp); err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to send otp email", err)
	}

	log.Printf("Sent OTP %s to %s", otp.ID, email)
	return &SendOTPResult{OTPID: otp.ID, Signature: signature}, nil
}

// VerifyOTP redeems a code. Checks run in a fixed order, first failure
// wins: email match, used latch, expiry, code match. Only after all four
// pass is the OTP marked used; a concurrent redemption losing the
// conditional write fails with already-used.
func (e *EmailOTP) VerifyOTP(req VerifyOTPRequest) (*Identifier, error) {
	e.EnsureDefaults()

	otp, err := e.Store.GetOTPById(req.OTPID)
	if err != nil {
		if errors.Is(err, ErrOTPNotFound) {
			return nil, NewAuthError(ErrCodeOTPNotFound, "otp not found")
		}
		return nil, WrapAuthError(ErrCodeInternal, "failed to load otp", err)
	}

	if otp.Email != req.Email {
		return nil, NewAuthError(ErrCodeOTPEmailMismatch, "email does not match")
	}
	if otp.Used {
		return nil, NewAuthError(ErrCodeOTPAlreadyUsed, "otp already used")
	}
	if otp.IsExpired() {
		return nil, NewAuthError(ErrCodeOTPExpired, "otp expired")
	}
	if otp.Code != req.Code {
		return nil, NewAuthError(ErrCodeOTPInvalidCode, "invalid code")
	}

	if err := e.Store.MarkOTPUsed(otp.ID); err != nil {
		if errors.Is(err, ErrOTPAlreadyUsed) {
			return nil, NewAuthError(ErrCodeOTPAlreadyUsed, "otp already used")
		}
		return nil, WrapAuthError(ErrCodeInternal, "failed to mark otp used", err)
	}

	return &Identifier{Type: AuthTypeEmailOTP, Value: req.Email}, nil
}

// AuthType implements Authenticator
func (e *EmailOTP) AuthType() string { return AuthTypeEmailOTP }

// Prepare implements Preparer: sends an OTP to params["email"]
func (e *EmailOTP) Prepare(ctx context.Context, params map[string]string) (map[string]string, error) {
	result, err := e.SendOTP(params["email"])
	if err != nil {
		return nil, err
	}
	return map[string]string{"otpId": result.OTPID, "signature": result.Signature}, nil
}

// Authenticate implements Authenticator: redeems the OTP named by params
func (e *EmailOTP) Authenticate(ctx context.Context, params map[string]string) (*Identifier, error) {
	return e.VerifyOTP(VerifyOTPRequest{
		Email: params["email"],
		OTPID: params["otpId"],
		Code:  params["code"],
	})
}

func (e *EmailOTP) sendEmail(otp *OTP) error {
	data := map[string]any{
		"Code":      otp.Code,
		"Signature": otp.Signature,
		"Minutes":   int(e.TTL.Minutes()),
	}

	textTmpl, err := texttemplate.New("otp-text").Parse(e.TextTemplate)
	if err != nil {
		return err
	}
	var text bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return err
	}

	htmlTmpl, err := htmltemplate.New("otp-html").Parse(e.HTMLTemplate)
	if err != nil {
		return err
	}
	var html bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return err
	}

	return e.Mailer.SendEmail(Email{
		From:        e.From,
		To:          []string{otp.Email},
		Subject:     e.Subject,
		TextContent: text.String(),
		HTMLContent: html.String(),
	})
}
