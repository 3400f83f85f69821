package auth

import (
	"forex-signal-engine/internal/logging"
)

// Service issues tokens to configured API clients
type Service struct {
	jwt     *JWTManager
	clients map[string]ClientCredential
	logger  *logging.Logger
}

// NewService creates an auth service from configuration
func NewService(cfg Config) *Service {
	clients := make(map[string]ClientCredential, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c.ID] = c
	}
	return &Service{
		jwt:     NewJWTManager(cfg.JWTSecret, cfg.Issuer, cfg.AccessTokenDuration),
		clients: clients,
		logger:  logging.WithComponent("auth"),
	}
}

// JWT returns the token manager used by the middleware
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// IssueToken exchanges client credentials for an access token
func (s *Service) IssueToken(req TokenRequest) (*TokenResponse, error) {
	client, ok := s.clients[req.ClientID]
	if !ok || !VerifySecret(req.ClientSecret, client.SecretHash) {
		s.logger.Warn("Rejected token request", "client_id", req.ClientID)
		return nil, ErrInvalidCredentials
	}

	scopes := client.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeRead}
	}
	token, err := s.jwt.GenerateAccessToken(ClientClaims{ClientID: client.ID, Scopes: scopes})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Issued access token", "client_id", client.ID)
	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   s.jwt.ExpiresIn(),
		TokenType:   "Bearer",
		Scopes:      scopes,
	}, nil
}
