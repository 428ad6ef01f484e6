package mfa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-vault-api/internal/domain"
	"github.com/go-vault-api/internal/infrastructure/smtp"
	"github.com/go-vault-api/internal/infrastructure/sns"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	challengeTTL = 300 * time.Second
	verifiedTTL  = 7200 * time.Second
)

// Factor identifies a second-factor delivery mechanism.
type Factor string

const (
	FactorEmail Factor = "email"
	FactorSms   Factor = "sms"
	FactorTotp  Factor = "totp"
)

// SessionStore is the subset of session persistence the MFA flows need.
// Apply sets and clears session fields in one write; ApplyIfChallengeMatches
// additionally requires the stored challenge code to equal code, so two
// concurrent verifications cannot both consume the same challenge.
type SessionStore interface {
	Apply(ctx context.Context, sessionID string, set map[string]interface{}, clear []string) error
	ApplyIfChallengeMatches(ctx context.Context, sessionID, code string, set map[string]interface{}, clear []string) error
}

// UserStore is the subset of user persistence the MFA flows need.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// ChallengeEngine issues and verifies one-time challenge codes bound to a
// session.
type ChallengeEngine struct {
	sessions SessionStore
	mailer   smtp.Mailer
	sms      sns.SMSSender
	issuer   string
	nowFn    func() time.Time
}

func NewChallengeEngine(sessions SessionStore, mailer smtp.Mailer, sms sns.SMSSender, issuer string) *ChallengeEngine {
	return &ChallengeEngine{
		sessions: sessions,
		mailer:   mailer,
		sms:      sms,
		issuer:   issuer,
		nowFn:    time.Now,
	}
}

// IssueChallenge generates a fresh code, stores it on the session and sends
// it over the given factor. Issuing replaces any previous pending challenge.
// For SMS the destination is the user's confirmed number; sms enrollment
// sends to the pending number instead (see EnrollmentService).
func (e *ChallengeEngine) IssueChallenge(ctx context.Context, session *domain.Session, user *domain.User, factor Factor) error {
	var to string
	switch factor {
	case FactorEmail:
		to = user.Email
	case FactorSms:
		if user.SmsNumber == nil || !user.SmsMfaEnabled {
			return fmt.Errorf("%w: no confirmed sms number", domain.ErrBadRequest)
		}
		to = *user.SmsNumber
	default:
		return fmt.Errorf("%w: factor %q cannot deliver challenge codes", domain.ErrBadRequest, factor)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate challenge code: %w", err)
	}
	expiresAt := e.nowFn().Add(challengeTTL).Unix()

	err = e.sessions.Apply(ctx, session.SessionID, map[string]interface{}{
		domain.SessionFieldChallengeCode:      code,
		domain.SessionFieldChallengeExpiresAt: expiresAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	session.ChallengeCode = &code
	session.ChallengeExpiresAt = expiresAt

	if err := e.deliver(ctx, factor, to, code); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	return nil
}

// deliver sends the code over the requested channel. Flows that target an
// unconfirmed number (sms enrollment) go through IssueChallengeTo instead.
func (e *ChallengeEngine) deliver(ctx context.Context, factor Factor, to, code string) error {
	switch factor {
	case FactorEmail:
		subject := fmt.Sprintf("%s verification code", e.issuer)
		text := fmt.Sprintf("Your %s verification code is %s. It expires in 5 minutes.", e.issuer, code)
		html := fmt.Sprintf("<p>Your %s verification code is <strong>%s</strong>.</p><p>It expires in 5 minutes.</p>", e.issuer, code)
		return e.mailer.SendEmail(to, subject, text, html)
	case FactorSms:
		return e.sms.SendSMS(ctx, to, fmt.Sprintf("%s verification code: %s", e.issuer, code))
	}
	return fmt.Errorf("unsupported delivery factor %q", factor)
}

// IssueChallengeTo stores a fresh code on the session and delivers it to an
// explicit destination, bypassing the user's confirmed contact details.
func (e *ChallengeEngine) IssueChallengeTo(ctx context.Context, session *domain.Session, factor Factor, to string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate challenge code: %w", err)
	}
	expiresAt := e.nowFn().Add(challengeTTL).Unix()

	err = e.sessions.Apply(ctx, session.SessionID, map[string]interface{}{
		domain.SessionFieldChallengeCode:      code,
		domain.SessionFieldChallengeExpiresAt: expiresAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	session.ChallengeCode = &code
	session.ChallengeExpiresAt = expiresAt

	if err := e.deliver(ctx, factor, to, code); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	return nil
}

// VerifyChallenge checks the submitted code against the session's pending
// challenge. On success the challenge is consumed and the session is marked
// MFA-verified for the verification window. A wrong code leaves the pending
// challenge untouched, and an expired one stays stored until a new issue
// replaces it.
func (e *ChallengeEngine) VerifyChallenge(ctx context.Context, session *domain.Session, code string) error {
	if session.ChallengeCode == nil || *session.ChallengeCode == "" {
		return domain.ErrNoChallengePending
	}

	now := e.nowFn()
	if now.Unix() > session.ChallengeExpiresAt {
		return domain.ErrChallengeExpired
	}

	submitted := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(*session.ChallengeCode), []byte(submitted)) != 1 {
		return domain.ErrCodeMismatch
	}

	return e.consume(ctx, session, now)
}

// consume clears the pending challenge and marks the session verified in a
// single conditional write keyed on the stored code.
func (e *ChallengeEngine) consume(ctx context.Context, session *domain.Session, now time.Time) error {
	verifiedUntil := now.Add(verifiedTTL).Unix()
	err := e.sessions.ApplyIfChallengeMatches(ctx, session.SessionID, *session.ChallengeCode,
		map[string]interface{}{
			domain.SessionFieldMfaVerified:          true,
			domain.SessionFieldMfaVerifiedExpiresAt: verifiedUntil,
		},
		[]string{
			domain.SessionFieldChallengeCode,
			domain.SessionFieldChallengeExpiresAt,
		})
	if err != nil {
		return err
	}

	session.ChallengeCode = nil
	session.ChallengeExpiresAt = 0
	session.MfaVerified = true
	session.MfaVerifiedExpiresAt = verifiedUntil
	return nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
