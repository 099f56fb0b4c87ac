package auth

import (
	"testing"
	"time"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestAuthenticator_AuthenticateJWT(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})

	t.Run("valid jwt", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":             "test-user",
			"exp":             time.Now().Add(time.Hour).Unix(),
			"iat":             time.Now().Unix(),
			"aud":             "liverelay",
			"authorizedRooms": []string{"abc123"},
			"scope":           []string{"subscribe"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.NoError(t, err)
		assert.NotNil(t, auth)
		assert.Equal(t, "test-user", auth.Subject)
		assert.Equal(t, []string{"abc123"}, auth.AuthorizedRooms)
		assert.True(t, auth.IsAuthorized("abc123"))
		assert.False(t, auth.IsAuthorized("other"))
		assert.True(t, auth.Grants(ActionSubscribe, "chat"))
		assert.False(t, auth.Grants(ActionPublish, "chat"))
		assert.Equal(t, []string{"subscribe"}, auth.Scope)
		assert.False(t, auth.IsAdmin)
	})

	t.Run("invalid jwt signature", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":             "test-user",
			"exp":             time.Now().Add(time.Hour).Unix(),
			"iat":             time.Now().Unix(),
			"aud":             "liverelay",
			"authorizedRooms": []string{"abc123"},
			"scope":           []string{"subscribe"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("invalid-secret"))
		assert.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})

	t.Run("expired jwt", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":             "test-user",
			"exp":             time.Now().Add(-time.Hour).Unix(),
			"iat":             time.Now().Unix(),
			"aud":             "liverelay",
			"authorizedRooms": []string{"abc123"},
			"scope":           []string{"subscribe"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := jwt.MapClaims{
			"exp":             time.Now().Add(time.Hour).Unix(),
			"iat":             time.Now().Unix(),
			"aud":             "liverelay",
			"authorizedRooms": []string{"abc123"},
			"scope":           []string{"subscribe"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, err.(ierr.Error).Code)
	})

	t.Run("unknown scope", func(t *testing.T) {
		for _, scope := range [][]string{{"broadcast"}, {"publish:"}} {
			claims := jwt.MapClaims{
				"sub":             "test-user",
				"exp":             time.Now().Add(time.Hour).Unix(),
				"iat":             time.Now().Unix(),
				"aud":             "liverelay",
				"authorizedRooms": []string{"abc123"},
				"scope":           scope,
			}
			tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
			assert.NoError(t, err)

			_, err = authenticator.AuthenticateJWT(tokenString)

			assert.True(t, ierr.Is(err, ierr.ErrorCodeInvalidArgument), scope)
		}
	})

	t.Run("missing authorized rooms", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":   "test-user",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
			"aud":   "liverelay",
			"scope": []string{"subscribe"},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, err.(ierr.Error).Code)
	})
}

func TestAuthenticator_AuthenticateAPIKey(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})

	t.Run("valid api key", func(t *testing.T) {
		auth, err := authenticator.AuthenticateAPIKey("test-api-key")

		assert.NoError(t, err)
		assert.NotNil(t, auth)
		assert.Equal(t, "api", auth.Subject)
		assert.Equal(t, []string{"publish"}, auth.Scope)
		assert.True(t, auth.IsAdmin)
		assert.True(t, auth.IsAuthorized("any-room"))
		assert.True(t, auth.Grants(ActionPublish, "stream-status"))
	})

	t.Run("invalid api key", func(t *testing.T) {
		auth, err := authenticator.AuthenticateAPIKey("invalid-api-key")

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})
}

func TestAuthentication_Grants(t *testing.T) {
	auth := &Authentication{
		Subject: "viewer",
		Scope:   []string{"subscribe", "publish:chat", "publish:emoji"},
	}

	assert.True(t, auth.Grants(ActionSubscribe, "module-action"))
	assert.True(t, auth.Grants(ActionPublish, "chat"))
	assert.True(t, auth.Grants(ActionPublish, "emoji"))
	assert.False(t, auth.Grants(ActionPublish, "module-action"))
	assert.False(t, auth.Grants(ActionPublish, "stream-status"))
}

func TestAuthentication_IsAuthorized(t *testing.T) {
	auth := &Authentication{
		Subject:         "viewer",
		AuthorizedRooms: []string{"abc123", "event-*"},
	}

	assert.True(t, auth.IsAuthorized("abc123"))
	assert.True(t, auth.IsAuthorized("event-42"))
	assert.True(t, auth.IsAuthorized("event-"))
	assert.False(t, auth.IsAuthorized("abc1234"))
	assert.False(t, auth.IsAuthorized("events-42"))

	everyRoom := &Authentication{Subject: "viewer", AuthorizedRooms: []string{"*"}}
	assert.True(t, everyRoom.IsAuthorized("anything.at:all"))

	anonymous := &Authentication{AuthorizedRooms: []string{"*"}}
	assert.False(t, anonymous.IsAuthorized("abc123"))
}
