package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// accountClaims is the payload layout of tokens minted by the account service:
// {"user": {"id": "..."}} next to the registered claims.
type accountClaims struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
}

var sharedSecretAlgorithms = []jose.SignatureAlgorithm{jose.HS256}

func (r *TokenResolver) resolveShared(token string) (*Identity, error) {
	parsed, err := jwt.ParseSigned(token, sharedSecretAlgorithms)
	if err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	var std jwt.Claims
	var account accountClaims
	if err := parsed.Claims(r.secret, &std, &account); err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: r.issuer, Time: time.Now()}, jwt.DefaultLeeway); err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	userID := account.User.ID
	if userID == "" {
		userID = std.Subject
	}
	if userID == "" {
		return nil, errMissingIdentity
	}
	return &Identity{UserID: userID}, nil
}

// SignToken mints an HS256 token for userID in the account service layout.
// A zero ttl produces a token without expiry; a negative ttl is rejected.
func SignToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("sign token: secret is required")
	}
	if ttl < 0 {
		return "", fmt.Errorf("sign token: ttl must not be negative, got %s", ttl)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	now := time.Now()
	std := jwt.Claims{
		Issuer:   issuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		std.Expiry = jwt.NewNumericDate(now.Add(ttl))
	}
	var account accountClaims
	account.User.ID = userID
	return jwt.Signed(signer).Claims(std).Claims(account).Serialize()
}
