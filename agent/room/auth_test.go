package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/visionflow/types"
)

func testAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "visionflow", Audience: "rooms"})
}

func TestAuthenticator_IssueAndVerify(t *testing.T) {
	a := testAuth()
	token, err := a.IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)

	identity, err := a.Verify(token, "math")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
}

func TestAuthenticator_Rejections(t *testing.T) {
	a := testAuth()
	valid, err := a.IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)
	expiredClaims := Claims{Room: "math", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "visionflow",
		Audience:  jwt.ClaimStrings{"rooms"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "someone-else", Audience: "rooms"}).
		IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)
	otherSecret, err := NewAuthenticator(AuthConfig{Secret: "other", Issuer: "visionflow", Audience: "rooms"}).
		IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "visionflow", Audience: jwt.ClaimStrings{"rooms"},
	}}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		room  string
	}{
		{"wrong room", valid, "physics"},
		{"expired", expired, "math"},
		{"wrong issuer", otherIssuer, "math"},
		{"wrong secret", otherSecret, "math"},
		{"no subject", noSubject, "math"},
		{"garbage", "not-a-jwt", "math"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token, tt.room)
			require.Error(t, err)
			assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
		})
	}
}

func TestAuthenticator_RoomlessTokenAdmitsAnyRoom(t *testing.T) {
	a := testAuth()
	token, err := a.IssueToken("instructor", "", 0)
	require.NoError(t, err)

	for _, room := range []string{"math", "physics"} {
		identity, err := a.Verify(token, room)
		require.NoError(t, err)
		assert.Equal(t, "instructor", identity)
	}
}

func TestAuthenticator_IssueRequiresSecretAndIdentity(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}).IssueToken("alice", "math", time.Minute)
	assert.Error(t, err)
	_, err = testAuth().IssueToken("", "math", time.Minute)
	assert.Error(t, err)
}

func TestAuthenticate_TokenSources(t *testing.T) {
	a := testAuth()
	token, err := a.IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)

	byQuery := httptest.NewRequest(http.MethodGet, "/rooms/math/ws?token="+token, nil)
	identity, err := a.Authenticate(byQuery, "math")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)

	byHeader := httptest.NewRequest(http.MethodGet, "/rooms/math/ws", nil)
	byHeader.Header.Set("Authorization", "Bearer "+token)
	identity, err = a.Authenticate(byHeader, "math")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)

	missing := httptest.NewRequest(http.MethodGet, "/rooms/math/ws", nil)
	_, err = a.Authenticate(missing, "math")
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestAuthenticate_Anonymous(t *testing.T) {
	a := NewAuthenticator(AuthConfig{AllowAnonymous: true})

	named := httptest.NewRequest(http.MethodGet, "/rooms/math/ws?identity=bob", nil)
	identity, err := a.Authenticate(named, "math")
	require.NoError(t, err)
	assert.Equal(t, "bob", identity)

	guest := httptest.NewRequest(http.MethodGet, "/rooms/math/ws", nil)
	identity, err = a.Authenticate(guest, "math")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(identity, "guest-"))
}
