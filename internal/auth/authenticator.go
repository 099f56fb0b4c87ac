package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

const Audience = "liverelay"

type Claims struct {
	jwt.RegisteredClaims
	AuthorizedRooms []string `json:"authorizedRooms,omitempty"`
	Scope           []string `json:"scope,omitempty"`
}

// Action is what a scope entry grants on a channel.
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionPublish   Action = "publish"
)

// Authentication is what a connection or HTTP request proved.
//
// Scope entries are "<action>" for every channel kind or "<action>:<kind>"
// for one kind, e.g. "subscribe" and "publish:emoji". AuthorizedRooms holds
// room ids, "*" for every room, or a prefix pattern such as "event-*".
type Authentication struct {
	Subject         string
	AuthorizedRooms []string
	Scope           []string
	IsAdmin         bool
}

// Grants reports whether the scope allows action on channels of kind.
func (a *Authentication) Grants(action Action, kind string) bool {
	return slices.ContainsFunc(a.Scope, func(entry string) bool {
		scoped, scopedKind, found := strings.Cut(entry, ":")

		return Action(scoped) == action && (!found || scopedKind == kind)
	})
}

func (a *Authentication) IsAuthorized(roomId string) bool {
	if a.Subject == "" {
		return false
	}

	if a.IsAdmin {
		return true
	}

	return slices.ContainsFunc(a.AuthorizedRooms, func(pattern string) bool {
		prefix, wildcard := strings.CutSuffix(pattern, "*")
		if wildcard {
			return strings.HasPrefix(roomId, prefix)
		}

		return pattern == roomId
	})
}

func validateScope(scope []string) error {
	for _, entry := range scope {
		action, kind, found := strings.Cut(entry, ":")
		if Action(action) != ActionSubscribe && Action(action) != ActionPublish {
			return fmt.Errorf("unknown scope %q", entry)
		}

		if found && kind == "" {
			return fmt.Errorf("scope %q names no channel kind", entry)
		}
	}

	return nil
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(Audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

func (a *Authenticator) AuthenticateJWT(tokenString string) (*Authentication, error) {
	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid subject claim"))
	}

	if len(claims.AuthorizedRooms) == 0 {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("authorized rooms cannot be empty"))
	}

	if err := validateScope(claims.Scope); err != nil {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	return &Authentication{
		Subject:         subject,
		AuthorizedRooms: claims.AuthorizedRooms,
		Scope:           claims.Scope,
		IsAdmin:         false,
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject: "api",
				Scope:   []string{string(ActionPublish)},
				IsAdmin: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}
