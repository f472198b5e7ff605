package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func testIssuer() *Issuer {
	return NewIssuer("librarylog", "test-secret", time.Hour, 24*time.Hour)
}

func TestIssuer_IssueAndParse(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-front")
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken, RoleDevice)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-front", claims.Subject)
	assert.Equal(t, "librarylog", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, err = iss.Parse(pair.RefreshToken, RoleDevice)
	assert.ErrorIs(t, err, ErrWrongRole)
}

func TestIssuer_Rejects(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-front")
	require.NoError(t, err)

	other := NewIssuer("librarylog", "other-secret", time.Hour, time.Hour)
	_, err = other.Parse(pair.AccessToken, RoleDevice)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewIssuer("someone-else", "test-secret", time.Hour, time.Hour)
	_, err = wrongIssuer.Parse(pair.AccessToken, RoleDevice)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := testIssuer()
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Parse(pair.AccessToken, RoleDevice)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("not-a-jwt", RoleDevice)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Refresh(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-front")
	require.NoError(t, err)

	next, err := iss.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken, RoleDevice)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-front", claims.Subject)

	_, err = iss.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongRole)
}

func deviceRouter(iss *Issuer, required bool) *gin.Engine {
	r := gin.New()
	r.POST("/tap", DeviceAuth(iss, required), func(c *gin.Context) {
		claims, ok := DeviceClaims(c)
		c.JSON(http.StatusOK, gin.H{"device": claims.Subject, "authed": ok})
	})
	return r
}

func TestDeviceAuth(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-front")
	require.NoError(t, err)

	cases := []struct {
		name     string
		required bool
		header   string
		want     int
	}{
		{"required missing", true, "", http.StatusUnauthorized},
		{"optional missing", false, "", http.StatusOK},
		{"bad scheme", false, "Basic abc", http.StatusUnauthorized},
		{"bad token", false, "Bearer nope", http.StatusUnauthorized},
		{"refresh as access", true, "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"valid", true, "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tap", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			deviceRouter(iss, tc.required).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestViewToken(t *testing.T) {
	r := gin.New()
	r.GET("/view", ViewToken("s3cret"), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", http.StatusForbidden},
		{"?token=wrong", http.StatusForbidden},
		{"?token=s3cre", http.StatusForbidden},
		{"?token=s3cret", http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view"+tc.query, nil))
		assert.Equal(t, tc.want, rec.Code, tc.query)
		if tc.want == http.StatusForbidden {
			assert.Contains(t, rec.Body.String(), `"error"`)
		}
	}
}

func TestViewToken_EmptyConfigRejectsAll(t *testing.T) {
	r := gin.New()
	r.GET("/view", ViewToken(""), func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view?token=", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
