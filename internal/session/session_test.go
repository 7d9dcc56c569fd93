package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   "u1",
		"type": "auth",
		"exp":  exp.Unix(),
	}).SignedString([]byte("irrelevant-for-unverified-decoding"))
	require.NoError(t, err)
	return tok
}

type fakeClient struct {
	token      string
	model      *domain.Principal
	loginErr   error
	refreshErr error
	refreshed  []string
}

func (f *fakeClient) AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return f.token, f.model, nil
}

func (f *fakeClient) AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error) {
	f.refreshed = append(f.refreshed, token)
	if f.refreshErr != nil {
		return "", nil, f.refreshErr
	}
	return f.token, f.model, nil
}

var volunteer = &domain.Principal{ID: "u1", Email: "v@aid.test", Role: domain.RoleVolunteer}

func TestLoginFailureLeavesUserNil(t *testing.T) {
	client := &fakeClient{loginErr: errors.New("Failed to authenticate.")}
	s := New(client, nil)

	res := s.Login(context.Background(), "bad@x.com", "wrong")

	assert.Equal(t, LoginResult{Success: false, Error: "Failed to authenticate."}, res)
	assert.Nil(t, s.Store().Value().User)
	assert.False(t, s.Authenticated())
}

func TestLoginSuccessUpdatesStore(t *testing.T) {
	client := &fakeClient{token: signedToken(t, time.Now().Add(time.Hour)), model: volunteer}
	s := New(client, nil)

	var seen []*domain.Principal
	unsubscribe := s.Store().Subscribe(func(st State) { seen = append(seen, st.User) })
	defer unsubscribe()

	res := s.Login(context.Background(), "v@aid.test", "pw")

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	require.NotNil(t, s.User())
	assert.Equal(t, "u1", s.User().ID)
	assert.True(t, s.Authenticated())
	require.Len(t, seen, 2, "initial value then the login")
	assert.Nil(t, seen[0])
	assert.Equal(t, "v@aid.test", seen[1].Email)

	s.Logout()
	assert.Nil(t, s.User())
	assert.False(t, s.Authenticated())
	assert.Len(t, client.refreshed, 0, "logout is local only")
}

func TestRefreshFailureClears(t *testing.T) {
	client := &fakeClient{refreshErr: errors.New("The request requires valid record authorization token.")}
	s := New(client, nil)
	s.Auth().Save(signedToken(t, time.Now().Add(time.Hour)), volunteer)

	before := testutil.ToFloat64(metrics.AuthRefreshFailuresTotal)
	err := s.Refresh(context.Background())

	require.Error(t, err)
	assert.Nil(t, s.User())
	assert.Empty(t, s.Auth().Token())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuthRefreshFailuresTotal))
}

func TestAuthStoreIsValid(t *testing.T) {
	a := NewAuthStore()
	assert.False(t, a.IsValid())

	a.Save(signedToken(t, time.Now().Add(time.Minute)), volunteer)
	assert.True(t, a.IsValid())

	a.Save(signedToken(t, time.Now().Add(-time.Minute)), volunteer)
	assert.False(t, a.IsValid())

	a.Save("garbage", volunteer)
	assert.False(t, a.IsValid())
}

func TestOnChangeUnsubscribe(t *testing.T) {
	a := NewAuthStore()
	calls := 0
	off := a.OnChange(func(string, *domain.Principal) { calls++ })

	a.Save("t", volunteer)
	a.Clear()
	off()
	a.Save("t", volunteer)

	assert.Equal(t, 2, calls)
}

func TestCookieRoundTrip(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	a := NewAuthStore()
	a.Save(token, volunteer)

	c := a.ExportCookie(CookieOptions{})
	assert.Equal(t, CookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.False(t, c.Secure)
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.Expires, 2*time.Second)

	header := c.String()
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "SameSite=Lax")

	restored := NewAuthStore()
	restored.LoadFromCookie("theme=dark; "+c.Name+"="+c.Value, "")
	assert.Equal(t, token, restored.Token())
	assert.Equal(t, volunteer, restored.Model())
}

func TestLoadFromCookieAcceptsSDKEncoding(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	// encodeURIComponent output of the JS SDK: spaces as %20, never '+'.
	raw := `{"token":"` + token + `","model":{"id":"u1","email":"v@aid.test","name":"Vic Volunteer","role":"volunteer"}}`
	value := strings.ReplaceAll(url.QueryEscape(raw), "+", "%20")

	a := NewAuthStore()
	a.LoadFromCookie(CookieName+"="+value, CookieName)

	require.NotNil(t, a.Model())
	assert.Equal(t, "Vic Volunteer", a.Model().Name)
	assert.True(t, a.IsValid())
}

func TestEmptyStoreExportsExpiredCookie(t *testing.T) {
	a := NewAuthStore()
	a.LoadFromCookie("", "")

	c := a.ExportCookie(CookieOptions{Secure: true})
	assert.True(t, c.Expires.Before(time.Now()))
	assert.Equal(t, -1, c.MaxAge)
	assert.True(t, c.Secure)
	assert.Contains(t, c.String(), "Max-Age=0")
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	good := signedToken(t, time.Now().Add(time.Hour))
	fresh := signedToken(t, time.Now().Add(2*time.Hour))

	source := NewAuthStore()
	source.Save(good, volunteer)
	valid := source.ExportCookie(CookieOptions{})

	client := &fakeClient{token: fresh, model: volunteer}
	s := New(client, nil)
	s.Restore(ctx, valid.Name+"="+valid.Value)
	assert.True(t, s.Authenticated())
	assert.Equal(t, fresh, s.Auth().Token())
	assert.Equal(t, []string{good}, client.refreshed)

	source.Save(signedToken(t, time.Now().Add(-time.Hour)), volunteer)
	expired := source.ExportCookie(CookieOptions{})
	client = &fakeClient{token: fresh, model: volunteer}
	s = New(client, nil)
	s.Restore(ctx, expired.Name+"="+expired.Value)
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, client.refreshed, "expired tokens are not refreshed")
}

func TestContextCarriesSession(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	s := New(&fakeClient{}, nil)
	ctx := WithSession(context.Background(), s)
	assert.Same(t, s, FromContext(ctx))
}
