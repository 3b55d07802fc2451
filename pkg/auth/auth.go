package auth

import (
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// Identity is the resolved caller of an HTTP request or websocket handshake.
// Session management itself lives outside this repository; we only verify
// tokens that the auth service minted.
type Identity struct {
	ID    string
	Name  string
	Staff bool
}

var ErrUnauthenticated = errors.New("auth: no valid identity")

// Authenticator resolves a bearer token into an Identity.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

type JWTAuthenticator struct {
	secret []byte
}

var _ Authenticator = &JWTAuthenticator{}

func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

func (a *JWTAuthenticator) Authenticate(token string) (Identity, error) {
	if a == nil || len(a.secret) == 0 {
		return Identity{}, ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	id, _ := claims["user_id"].(string)
	if strings.TrimSpace(id) == "" {
		return Identity{}, ErrUnauthenticated
	}
	name, _ := claims["name"].(string)
	staff, _ := claims["staff"].(bool)
	return Identity{ID: id, Name: name, Staff: staff}, nil
}

// Mint issues a signed token for the given identity. Used by tests and by the
// dev seed tooling; production tokens come from the external auth service.
func (a *JWTAuthenticator) Mint(ident Identity) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", errors.New("auth: authenticator is not initialized")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": ident.ID,
		"name":    ident.Name,
		"staff":   ident.Staff,
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// TokenFromRequest pulls the bearer token from the Authorization header or,
// for websocket handshakes where custom headers are awkward, from the `token`
// query parameter.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
