package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const (
	webauthnTokenName    = "webauthn"
	publicKeyType        = string(protocol.PublicKeyCredentialType)
	clientDataField      = "response.clientDataJSON"
	challengeExpired     = "The WebAuthn challenge has expired or is invalid."
	clientDataUnreadable = "Unable to parse client data."
	clientDataWrongType  = "Invalid client data type."
	challengeMismatch    = "Challenge mismatch."
	signCountRegressed   = "Sign count was lower than expected."
)

// OptionsRequest asks for ceremony options. User is the authenticated caller
// and is only required for registration.
type OptionsRequest struct {
	Type  string
	Email string
	User  *domain.User
}

// CeremonyOptions is handed to navigator.credentials.create or .get.
// PublicKey holds the protocol options struct for the ceremony type.
type CeremonyOptions struct {
	Type      string `json:"type"`
	PublicKey any    `json:"publicKey"`
}

type RegisterCredential struct {
	ID                string
	RawID             string
	Type              string
	Name              string
	ClientDataJSON    string
	AttestationObject string
	PublicKey         string
	SignCount         int64
	Transports        []string
}

type VerifyAssertion struct {
	ID                string
	Type              string
	ClientDataJSON    string
	AuthenticatorData string
	Signature         string
	SignCount         int64
	SessionID         string
}

// RelyingParty identifies this service to authenticators
type RelyingParty struct {
	ID      string
	Name    string
	Timeout time.Duration
}

// webAuthnService implements WebAuthnService interface
type webAuthnService struct {
	users       repository.UserRepository
	credentials repository.WebAuthnCredentialRepository
	challenges  *ChallengeStore
	establisher *SessionEstablisher
	rp          RelyingParty
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewWebAuthnService creates a new WebAuthn service
func NewWebAuthnService(
	users repository.UserRepository,
	credentials repository.WebAuthnCredentialRepository,
	challenges *ChallengeStore,
	establisher *SessionEstablisher,
	rp RelyingParty,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) WebAuthnService {
	return &webAuthnService{
		users:       users,
		credentials: credentials,
		challenges:  challenges,
		establisher: establisher,
		rp:          rp,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Options issues a challenge and describes the ceremony to the client
func (s *webAuthnService) Options(ctx context.Context, req OptionsRequest) (*CeremonyOptions, error) {
	ceremony := domain.CeremonyType(strings.ToLower(strings.TrimSpace(req.Type)))
	if ceremony == "" {
		ceremony = domain.CeremonyLogin
	}

	switch ceremony {
	case domain.CeremonyRegister:
		return s.registrationOptions(ctx, req.User)
	case domain.CeremonyLogin:
		return s.loginOptions(ctx, req.Email)
	default:
		return nil, apperr.Validation("type", "The type must be either login or register.")
	}
}

func (s *webAuthnService) registrationOptions(ctx context.Context, user *domain.User) (*CeremonyOptions, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	existing, err := s.credentials.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	challenge, err := s.challenges.Issue(ctx, domain.CeremonyRegister, user.ID)
	if err != nil {
		return nil, err
	}

	displayName := user.Name
	if displayName == "" {
		displayName = user.Email
	}

	options := protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: s.rp.Name},
			ID:               s.rp.ID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: user.Email},
			DisplayName:      displayName,
			ID:               protocol.URLEncodedBase64(user.ID),
		},
		Challenge: challenge,
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
		},
		Timeout:               int(s.rp.Timeout.Milliseconds()),
		CredentialExcludeList: descriptors(existing, false),
		Attestation:           protocol.PreferNoAttestation,
	}

	return &CeremonyOptions{Type: string(domain.CeremonyRegister), PublicKey: options}, nil
}

func (s *webAuthnService) loginOptions(ctx context.Context, email string) (*CeremonyOptions, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email", "The email field is required.")
	}
	if !utils.ValidateEmail(email) {
		return nil, apperr.Validation("email", "The email field must be a valid email address.")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Validation("email", "No user found for the supplied email.")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	credentials, err := s.credentials.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	challenge, err := s.challenges.Issue(ctx, domain.CeremonyLogin, user.ID)
	if err != nil {
		return nil, err
	}

	options := protocol.PublicKeyCredentialRequestOptions{
		Challenge:          challenge,
		Timeout:            int(s.rp.Timeout.Milliseconds()),
		RelyingPartyID:     s.rp.ID,
		AllowedCredentials: descriptors(credentials, true),
		UserVerification:   protocol.VerificationPreferred,
	}

	return &CeremonyOptions{Type: string(domain.CeremonyLogin), PublicKey: options}, nil
}

// descriptors converts stored credentials. Ids that are not base64url are
// skipped since no authenticator could match them.
func descriptors(credentials []*domain.WebAuthnCredential, withTransports bool) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(credentials))
	for _, c := range credentials {
		id, err := decodeBase64URL(c.CredentialID)
		if err != nil {
			continue
		}
		d := protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		}
		if withTransports {
			d.Transport = make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
			for _, t := range c.Transports {
				d.Transport = append(d.Transport, protocol.AuthenticatorTransport(t))
			}
		}
		out = append(out, d)
	}
	return out
}

// Register stores a new authenticator for user after checking the client
// data against the outstanding registration challenge.
func (s *webAuthnService) Register(ctx context.Context, user *domain.User, req RegisterCredential) (*domain.WebAuthnCredential, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	fields := map[string][]string{}
	required(fields, "id", req.ID)
	required(fields, "rawId", req.RawID)
	required(fields, clientDataField, req.ClientDataJSON)
	required(fields, "response.attestationObject", req.AttestationObject)
	required(fields, "publicKey", req.PublicKey)
	if req.Type != publicKeyType {
		fields["type"] = append(fields["type"], "The selected type is invalid.")
	}
	if utils.Length(req.Name) > 255 {
		fields["name"] = append(fields["name"], "The name field must not be greater than 255 characters.")
	}
	if req.SignCount < 0 || req.SignCount > int64(^uint32(0)) {
		fields["signCount"] = append(fields["signCount"], "The sign count field must be a valid counter.")
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	if err := s.checkClientData(ctx, domain.CeremonyRegister, user.ID, req.ClientDataJSON, protocol.CreateCeremony); err != nil {
		return nil, err
	}

	now := s.now()
	credential := &domain.WebAuthnCredential{
		UserID:       user.ID,
		CredentialID: req.ID,
		Name:         req.Name,
		PublicKey:    req.PublicKey,
		SignCount:    uint32(req.SignCount),
		Transports:   req.Transports,
		LastUsedAt:   &now,
		CreatedAt:    now,
	}

	if err := s.credentials.Upsert(ctx, credential); err != nil {
		if errors.Is(err, repository.ErrCredentialOwnedByOtherUser) {
			return nil, apperr.Validation("id", "The credential is already registered.")
		}
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	s.logger.Info("webauthn credential registered", zap.String("user_id", user.ID))
	return credential, nil
}

// Verify checks an assertion and logs the credential owner in
func (s *webAuthnService) Verify(ctx context.Context, req VerifyAssertion) (*domain.EstablishedSession, error) {
	fields := map[string][]string{}
	required(fields, "id", req.ID)
	required(fields, clientDataField, req.ClientDataJSON)
	required(fields, "response.authenticatorData", req.AuthenticatorData)
	required(fields, "response.signature", req.Signature)
	if req.Type != publicKeyType {
		fields["type"] = append(fields["type"], "The selected type is invalid.")
	}
	if req.SignCount < 0 || req.SignCount > int64(^uint32(0)) {
		fields["signCount"] = append(fields["signCount"], "The sign count field must be a valid counter.")
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	credential, err := s.credentials.GetByCredentialID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Attempt(ctx, string(domain.FlowWebAuthn), "unknown_credential")
			return nil, apperr.Validation("id", "Credential not found.")
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if err := s.checkClientData(ctx, domain.CeremonyLogin, credential.UserID, req.ClientDataJSON, protocol.AssertCeremony); err != nil {
		s.metrics.Attempt(ctx, string(domain.FlowWebAuthn), "challenge")
		return nil, err
	}

	signCount := uint32(req.SignCount)
	if signCount < credential.SignCount {
		s.logger.Warn("webauthn sign count regression",
			zap.String("user_id", credential.UserID),
			zap.Uint32("stored", credential.SignCount),
			zap.Uint32("reported", signCount),
		)
		s.metrics.Attempt(ctx, string(domain.FlowWebAuthn), "sign_count")
		return nil, apperr.Validation("signCount", signCountRegressed)
	}

	if err := s.credentials.UpdateSignCount(ctx, credential.CredentialID, signCount, s.now()); err != nil {
		if errors.Is(err, repository.ErrSignCountRegression) {
			s.metrics.Attempt(ctx, string(domain.FlowWebAuthn), "sign_count")
			return nil, apperr.Validation("signCount", signCountRegressed)
		}
		return nil, fmt.Errorf("failed to update sign count: %w", err)
	}

	user, err := s.users.GetByID(ctx, credential.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.establisher.Establish(ctx, domain.AuthenticatedPrincipal{
		User:      user,
		Flow:      domain.FlowWebAuthn,
		Remember:  true,
		TokenName: webauthnTokenName,
	}, req.SessionID)
}

// checkClientData pulls the challenge first, so a failed attempt still
// burns it.
func (s *webAuthnService) checkClientData(ctx context.Context, ceremony domain.CeremonyType, userID, encoded string, expected protocol.CeremonyType) error {
	challenge, err := s.challenges.Pull(ctx, ceremony, userID)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return apperr.Validation("challenge", challengeExpired)
		}
		return err
	}

	raw, err := decodeBase64URL(encoded)
	if err != nil {
		return apperr.Validation(clientDataField, clientDataUnreadable)
	}

	var clientData protocol.CollectedClientData
	if err := json.Unmarshal(raw, &clientData); err != nil {
		return apperr.Validation(clientDataField, clientDataUnreadable)
	}

	if clientData.Type != expected {
		return apperr.Validation(clientDataField, clientDataWrongType)
	}

	if clientData.Challenge == "" || !utils.ConstantTimeEqual(challenge, clientData.Challenge) {
		return apperr.Validation(clientDataField, challengeMismatch)
	}

	return nil
}

// decodeBase64URL accepts base64url with or without padding
func decodeBase64URL(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
}

func required(fields map[string][]string, field, value string) {
	if strings.TrimSpace(value) == "" {
		fields[field] = append(fields[field], fmt.Sprintf("The %s field is required.", field))
	}
}
