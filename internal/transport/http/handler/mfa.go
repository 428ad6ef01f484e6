package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-vault-api/internal/application/mfa"
	"github.com/go-vault-api/internal/transport/http/middleware"
)

// MFAHandler drives challenge and enrollment endpoints. All routes except the
// email confirmation run with a resolved identity in context.
type MFAHandler struct {
	challenges  *mfa.ChallengeEngine
	enrollments *mfa.EnrollmentService
}

func NewMFAHandler(challenges *mfa.ChallengeEngine, enrollments *mfa.EnrollmentService) *MFAHandler {
	return &MFAHandler{challenges: challenges, enrollments: enrollments}
}

// StartChallenge issues a fresh code over the requested factor.
// POST /mfa/challenge {"factor": "email"|"sms"}
func (h *MFAHandler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Factor string `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Factor == "" {
		writeError(w, http.StatusBadRequest, "factor required")
		return
	}
	if err := h.challenges.IssueChallenge(r.Context(), sess, sess.User, mfa.Factor(req.Factor)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "challenge sent"})
}

// VerifyChallenge consumes the pending code and marks the session verified.
// POST /mfa/verify {"code": "AB12CD"}
func (h *MFAHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}
	if err := h.challenges.VerifyChallenge(r.Context(), sess, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "mfa verified"})
}

// StartEmailEnrollment mails the caller a signed enable-MFA link.
func (h *MFAHandler) StartEmailEnrollment(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.enrollments.StartEmailEnrollment(r.Context(), sess.User); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "enrollment email sent"})
}

// ConfirmEmailEnrollment enables MFA for the user named by the mailed token.
// The link is followed from the email client, so no session is required.
func (h *MFAHandler) ConfirmEmailEnrollment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}
	if _, err := h.enrollments.ConfirmEmailEnrollment(r.Context(), req.Token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "mfa enabled"})
}

// StartSmsEnrollment texts a code to the candidate number.
// POST /mfa/sms/start {"phone_number": "+15551234567"}
func (h *MFAHandler) StartSmsEnrollment(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phone_number required")
		return
	}
	if err := h.enrollments.StartSmsEnrollment(r.Context(), sess, req.PhoneNumber); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

// ConfirmSmsEnrollment commits the pending number as a confirmed SMS factor.
func (h *MFAHandler) ConfirmSmsEnrollment(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}
	if err := h.enrollments.ConfirmSmsEnrollment(r.Context(), sess, sess.User, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "sms factor enabled"})
}

// StartTotpEnrollment returns the provisioning secret, URI and QR code.
func (h *MFAHandler) StartTotpEnrollment(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	enrollment, err := h.enrollments.StartTotpEnrollment(r.Context(), sess, sess.User)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret": enrollment.Secret,
		"uri":    enrollment.URI,
		"qr_png": base64.StdEncoding.EncodeToString(enrollment.QRPng),
	})
}

// VerifyTotp validates a passcode, completing enrollment if one is pending
// and marking the session verified either way.
// POST /mfa/totp/verify {"passcode": "123456"}
func (h *MFAHandler) VerifyTotp(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "passcode required")
		return
	}
	if err := h.enrollments.VerifyTotp(r.Context(), sess, sess.User, req.Passcode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "mfa verified"})
}
