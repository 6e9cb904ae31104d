package web

import (
	"errors"
	"strings"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

type identityKey struct{}

var errMissingClaim = errors.New("token is missing the sub or group claim")

// Claims are the JWT claims identifying a caller.
type Claims struct {
	Group string `json:"group"`
	jwt.RegisteredClaims
}

// Authenticate accepts HS256 bearer tokens signed with secret and stores the
// caller identity for the handlers.
func Authenticate(secret []byte) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return unauthorized(c, "missing bearer token")
		}

		identity, err := parseIdentity(parser, strings.TrimSpace(raw), secret)
		if err != nil {
			return unauthorized(c, err.Error())
		}

		c.Locals(identityKey{}, identity)

		return c.Next()
	}
}

func parseIdentity(parser *jwt.Parser, raw string, secret []byte) (models.Identity, error) {
	var claims Claims

	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return models.Identity{}, err
	}

	if claims.Subject == "" || claims.Group == "" {
		return models.Identity{}, errMissingClaim
	}

	return models.Identity{Username: claims.Subject, Group: claims.Group}, nil
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(identityKey{}).(models.Identity)

	return identity, ok
}

// SignToken issues a token for identity. It is used by tooling and tests.
func SignToken(secret []byte, identity models.Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Group:            identity.Group,
		RegisteredClaims: jwt.RegisteredClaims{Subject: identity.Username},
	})

	return token.SignedString(secret)
}
