package mfa

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/infrastructure/qr"
	"github.com/go-vault-api/internal/infrastructure/smtp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretSize = 20
	totpPeriod     = 30
	totpSkew       = 1

	enrollmentTokenPurpose = "mfa_email_enrollment"
)

// E.164-ish: a plus sign followed by 9 to 14 digits.
var smsNumberRe = regexp.MustCompile(`^\+\d{9,14}$`)

// TotpEnrollment is handed back to the client when TOTP setup starts.
type TotpEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
	QRPng  []byte `json:"qr_png"`
}

// EnrollmentService drives the three MFA enrollment flows. Email enrollment
// round-trips a signed link; SMS and TOTP park pending state on the session
// and commit it to the user profile only after a successful confirmation.
type EnrollmentService struct {
	users       UserStore
	sessions    SessionStore
	challenges  *ChallengeEngine
	mailer      smtp.Mailer
	qr          qr.Renderer
	tokenSecret []byte
	tokenTTL    time.Duration
	issuer      string
	frontendURL string
	nowFn       func() time.Time
}

func NewEnrollmentService(
	users UserStore,
	sessions SessionStore,
	challenges *ChallengeEngine,
	mailer smtp.Mailer,
	qrRenderer qr.Renderer,
	tokenSecret string,
	tokenTTL time.Duration,
	issuer, frontendURL string,
) *EnrollmentService {
	return &EnrollmentService{
		users:       users,
		sessions:    sessions,
		challenges:  challenges,
		mailer:      mailer,
		qr:          qrRenderer,
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
		issuer:      issuer,
		frontendURL: frontendURL,
		nowFn:       time.Now,
	}
}

type enrollmentClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// StartEmailEnrollment mails the user a signed confirmation link. Nothing is
// persisted; the token itself carries the enrollment intent.
func (s *EnrollmentService) StartEmailEnrollment(ctx context.Context, user *domain.User) error {
	now := s.nowFn()
	claims := enrollmentClaims{
		Purpose: enrollmentTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
	if err != nil {
		return fmt.Errorf("sign enrollment token: %w", err)
	}

	link := fmt.Sprintf("%s/mfa/email/confirm?token=%s", s.frontendURL, url.QueryEscape(signed))
	subject := fmt.Sprintf("Enable two-factor authentication for %s", s.issuer)
	text := fmt.Sprintf("Open the link below to enable two-factor authentication on your %s account. The link expires in %d hours.\n\n%s",
		s.issuer, int(s.tokenTTL.Hours()), link)
	html := fmt.Sprintf("<p>Click <a href=%q>here</a> to enable two-factor authentication on your %s account.</p><p>The link expires in %d hours.</p>",
		link, s.issuer, int(s.tokenTTL.Hours()))

	if err := s.mailer.SendEmail(user.Email, subject, text, html); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	return nil
}

// ConfirmEmailEnrollment validates the mailed token and flips mfa_enabled on
// the user it names. A token whose subject no longer resolves to a user is
// treated as invalid. Returns the enrolled user's ID.
func (s *EnrollmentService) ConfirmEmailEnrollment(ctx context.Context, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &enrollmentClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.tokenSecret, nil
	}, jwt.WithTimeFunc(s.nowFn))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*enrollmentClaims)
	if !ok || !token.Valid || claims.Purpose != enrollmentTokenPurpose || claims.Subject == "" {
		return "", domain.ErrInvalidToken
	}

	if _, err := s.users.Get(ctx, claims.Subject); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown subject", domain.ErrInvalidToken)
		}
		return "", fmt.Errorf("load user %s: %w", claims.Subject, err)
	}

	err = s.users.Update(ctx, claims.Subject, map[string]interface{}{
		"mfa_enabled": true,
	})
	if err != nil {
		return "", fmt.Errorf("enable mfa for user %s: %w", claims.Subject, err)
	}
	return claims.Subject, nil
}

// StartSmsEnrollment validates the candidate number, parks it on the session
// and texts it a challenge code. The profile is untouched until the code
// comes back.
func (s *EnrollmentService) StartSmsEnrollment(ctx context.Context, session *domain.Session, number string) error {
	if !smsNumberRe.MatchString(number) {
		return fmt.Errorf("%w: phone number must match %s", domain.ErrBadRequest, smsNumberRe.String())
	}

	err := s.sessions.Apply(ctx, session.SessionID, map[string]interface{}{
		domain.SessionFieldPendingSmsNumber: number,
	}, nil)
	if err != nil {
		return fmt.Errorf("store pending sms number: %w", err)
	}
	session.PendingSmsNumber = &number

	return s.challenges.IssueChallengeTo(ctx, session, FactorSms, number)
}

// ConfirmSmsEnrollment consumes the pending challenge and, on success,
// commits the pending number to the user profile as a confirmed SMS factor.
func (s *EnrollmentService) ConfirmSmsEnrollment(ctx context.Context, session *domain.Session, user *domain.User, code string) error {
	if session.PendingSmsNumber == nil || *session.PendingSmsNumber == "" {
		return fmt.Errorf("%w: no sms enrollment in progress", domain.ErrBadRequest)
	}
	number := *session.PendingSmsNumber

	if err := s.challenges.VerifyChallenge(ctx, session, code); err != nil {
		return err
	}

	err := s.users.Update(ctx, user.UserID, map[string]interface{}{
		"sms_mfa_enabled": true,
		"sms_number":      number,
	})
	if err != nil {
		return fmt.Errorf("commit sms factor: %w", err)
	}
	user.SmsMfaEnabled = true
	user.SmsNumber = &number

	err = s.sessions.Apply(ctx, session.SessionID, nil, []string{domain.SessionFieldPendingSmsNumber})
	if err != nil {
		return fmt.Errorf("clear pending sms number: %w", err)
	}
	session.PendingSmsNumber = nil
	return nil
}

// StartTotpEnrollment generates a fresh secret, parks it on the session and
// returns the provisioning material for the authenticator app.
func (s *EnrollmentService) StartTotpEnrollment(ctx context.Context, session *domain.Session, user *domain.User) (*TotpEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		SecretSize:  totpSecretSize,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	secret := key.Secret()
	err = s.sessions.Apply(ctx, session.SessionID, map[string]interface{}{
		domain.SessionFieldPendingTotpSecret: secret,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store pending totp secret: %w", err)
	}
	session.PendingTotpSecret = &secret

	png, err := s.qr.Render(key.URL())
	if err != nil {
		return nil, fmt.Errorf("render provisioning qr: %w", err)
	}

	return &TotpEnrollment{Secret: secret, URI: key.URL(), QRPng: png}, nil
}

// VerifyTotp checks a passcode against the user's TOTP secret. A secret
// already committed to the profile takes precedence; otherwise the pending
// enrollment secret on the session is used and, on success, committed. Either
// way a valid passcode marks the session MFA-verified.
func (s *EnrollmentService) VerifyTotp(ctx context.Context, session *domain.Session, user *domain.User, passcode string) error {
	var secret string
	enrolling := false
	switch {
	case user.TotpEnabled && user.TotpSecret != nil && *user.TotpSecret != "":
		secret = *user.TotpSecret
	case session.PendingTotpSecret != nil && *session.PendingTotpSecret != "":
		secret = *session.PendingTotpSecret
		enrolling = true
	default:
		return domain.ErrNoSecretAvailable
	}

	now := s.nowFn()
	valid, err := totp.ValidateCustom(passcode, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("validate passcode: %w", err)
	}
	if !valid {
		return domain.ErrInvalidOtp
	}

	if enrolling {
		err = s.users.Update(ctx, user.UserID, map[string]interface{}{
			"mfa_enabled":  true,
			"totp_enabled": true,
			"totp_secret":  secret,
		})
		if err != nil {
			return fmt.Errorf("commit totp factor: %w", err)
		}
		user.MfaEnabled = true
		user.TotpEnabled = true
		user.TotpSecret = &secret
	}

	verifiedUntil := now.Add(verifiedTTL).Unix()
	set := map[string]interface{}{
		domain.SessionFieldMfaVerified:          true,
		domain.SessionFieldMfaVerifiedExpiresAt: verifiedUntil,
	}
	var clear []string
	if enrolling {
		clear = append(clear, domain.SessionFieldPendingTotpSecret)
	}
	if err := s.sessions.Apply(ctx, session.SessionID, set, clear); err != nil {
		return fmt.Errorf("mark session verified: %w", err)
	}
	if enrolling {
		session.PendingTotpSecret = nil
	}
	session.MfaVerified = true
	session.MfaVerifiedExpiresAt = verifiedUntil
	return nil
}
