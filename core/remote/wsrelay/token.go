package wsrelay

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const sharedSecretTokenTTL = 5 * time.Minute

// sharedSecretSource mints HS256 bearer tokens for relays that trust a
// pre-shared secret instead of the assistant's OAuth2 login.
type sharedSecretSource struct {
	secret  []byte
	subject string
}

func (s sharedSecretSource) Token() (*oauth2.Token, error) {
	now := time.Now()
	expiry := now.Add(sharedSecretTokenTTL)
	claims := jwt.MapClaims{
		"sub": s.subject,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing relay token: %w", err)
	}
	return &oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: expiry}, nil
}

// WithSharedSecret authorizes every connection with a short-lived token
// signed by secret. subject identifies this device to the relay.
func WithSharedSecret(secret []byte, subject string) ClientOption {
	return WithTokenSource(oauth2.ReuseTokenSource(nil, sharedSecretSource{secret: secret, subject: subject}))
}
