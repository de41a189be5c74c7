package app

import (
	"fmt"
	"strings"

	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/oauth"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/service"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

// services holds everything the HTTP layer and the background workers use
type services struct {
	auth          service.AuthService
	magicLinks    service.MagicLinkService
	oauth         service.OAuthService
	webauthn      service.WebAuthnService
	vault         *service.TokenVault
	authenticator *service.RequestAuthenticator
	limiter       *service.RateLimiter
	jwks          *service.JWKSProvider
	urlSigner     *utils.URLSigner
	dispatcher    *service.Dispatcher
	janitor       *service.Janitor
	closers       []func() error
}

func newServices(infra Infrastructure, cfg *config.Config) (*services, error) {
	logger := infra.Logger()
	store := infra.Cache()
	repos := repository.NewRepositories(infra.Postgres())

	metrics, err := observability.NewAuthMetrics(infra.MeterProvider().Meter(serviceName))
	if err != nil {
		return nil, err
	}

	var signer *utils.JWTSigner
	if cfg.JWT.PrivateKey != "" {
		key, err := utils.LoadRSAPrivateKey(cfg.JWT.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load JWT signing key: %w", err)
		}
		signer = utils.NewJWTSigner(key, cfg.JWT.KeyID, cfg.App.URL, cfg.JWT.IDTokenExpiry.Duration)
	}

	s := &services{}

	var notifier service.Notifier = service.NewLogNotifier(logger)
	if strings.EqualFold(cfg.Notifier.Driver, "kafka") {
		kafkaNotifier := service.NewKafkaNotifier(service.NewKafkaWriter(cfg.Notifier.Kafka.Brokers, cfg.Notifier.Kafka.Topic))
		notifier = kafkaNotifier
		s.closers = append(s.closers, kafkaNotifier.Close)
	}

	hasher := utils.BCryptHasher{Cost: cfg.Security.BCryptCost}
	sessions := service.NewSessionStore(store, cfg.Session.Lifetime.Duration, cfg.Session.RememberLifetime.Duration)

	s.limiter = service.NewRateLimiter(store)
	s.vault = service.NewTokenVault(repos.AccessToken, repos.User, metrics, logger)
	s.authenticator = service.NewRequestAuthenticator(sessions, repos.User, s.vault)
	s.urlSigner = utils.NewURLSigner(cfg.App.Key).WithBasePath(cfg.BasePath())
	s.dispatcher = service.NewDispatcher(notifier, cfg.Notifier.Workers, cfg.Notifier.QueueSize, cfg.Notifier.Timeout.Duration, metrics, logger)
	s.janitor = service.NewJanitor(repos.MagicLoginToken, cfg.MagicLink.CleanupInterval.Duration, cfg.MagicLink.CleanupGrace.Duration, logger)
	s.jwks = service.NewJWKSProvider([]service.PublicKeyConfig{{
		KID: cfg.JWKS.KID,
		Alg: cfg.JWKS.Alg,
		Use: cfg.JWKS.Use,
		PEM: cfg.JWKS.PublicKey,
	}}, signer, logger)

	establisher := service.NewSessionEstablisher(sessions, s.vault, signer, metrics, logger)

	s.auth = service.NewAuthService(
		repos.User,
		hasher,
		s.limiter,
		establisher,
		s.vault,
		service.ThrottleSettings{
			MaxAttempts: cfg.Security.LoginMaxAttempts,
			Decay:       cfg.Security.LoginDecay.Duration,
		},
		metrics,
		logger,
	)

	s.magicLinks = service.NewMagicLinkService(
		repos.User,
		repos.MagicLoginToken,
		s.limiter,
		s.urlSigner,
		establisher,
		s.dispatcher,
		service.MagicLinkSettings{
			AppURL:           cfg.App.URL,
			HomeURL:          cfg.App.HomeURL,
			TTL:              cfg.MagicLink.TTL.Duration,
			MaxAttempts:      cfg.MagicLink.MaxAttempts,
			Decay:            cfg.MagicLink.Decay.Duration,
			UnverifiedPolicy: cfg.MagicLink.UnverifiedPolicy,
		},
		metrics,
		logger,
	)

	registry := oauth.NewRegistryFromConfig(cfg.OAuth, cfg.App.URL)
	logger.Info("OAuth providers enabled", zap.Strings("providers", registry.Names()))

	s.oauth = service.NewOAuthService(
		registry,
		repos.User,
		repos.Identity,
		store,
		hasher,
		establisher,
		cfg.OAuth.UnverifiedPolicy,
		cfg.OAuth.StateTTL.Duration,
		metrics,
		logger,
	)

	s.webauthn = service.NewWebAuthnService(
		repos.User,
		repos.WebAuthnCredential,
		service.NewChallengeStore(store, cfg.WebAuthn.ChallengeTTL.Duration),
		establisher,
		service.RelyingParty{
			ID:      cfg.RelyingPartyID(),
			Name:    cfg.RelyingPartyName(),
			Timeout: cfg.WebAuthn.Timeout.Duration,
		},
		metrics,
		logger,
	)

	return s, nil
}
