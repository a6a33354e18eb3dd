package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_SignUpThenSignInOpensSession(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("a registered user can sign in with the same password", prop.ForAll(
		func(local string, password string) bool {
			env := newTestEnv(t)
			email := fmt.Sprintf("%s@example.com", local)

			rec := env.do(http.MethodPost, "/api/auth/sign-up", SignUpRequest{Email: email, Password: password}, "")
			if rec.Code != http.StatusCreated {
				return false
			}
			var signedUp SessionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &signedUp); err != nil {
				return false
			}

			rec = env.do(http.MethodPost, "/api/auth/sign-in", SignInRequest{Email: email, Password: password}, "")
			if rec.Code != http.StatusOK {
				return false
			}
			var signedIn SessionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &signedIn); err != nil {
				return false
			}

			return signedIn.AccessToken != "" &&
				signedIn.RefreshToken != signedUp.RefreshToken &&
				signedIn.Profile.ID == signedUp.Profile.ID &&
				!signedIn.Profile.IsAdmin
		},
		gen.RegexMatch(`[a-z][a-z0-9]{2,20}`),
		gen.RegexMatch(`[a-zA-Z0-9]{6,24}`),
	))

	properties.TestingRun(t)
}

func TestSessionHandler_SignUpValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/sign-up", SignUpRequest{Email: "not-an-email", Password: "123"}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	fields := body.Error.Details["validation_errors"].([]interface{})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"email", "password"}, names)
}

func TestSessionHandler_DuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "ana@example.com", false)

	rec := env.do(http.MethodPost, "/api/auth/sign-up", SignUpRequest{Email: "ANA@example.com", Password: "secret123"}, "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionHandler_WrongPasswordIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "ana@example.com", false)

	rec := env.do(http.MethodPost, "/api/auth/sign-in", SignInRequest{Email: "ana@example.com", Password: "wrong-password"}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", decodeError(t, rec).Error.Message)
}

func TestSessionHandler_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/sign-in", "just a string", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decodeError(t, rec).Error.Message)
}

func TestSessionHandler_SignOutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/sign-up", SignUpRequest{Email: "ana@example.com", Password: "secret123"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = env.do(http.MethodPost, "/api/auth/refresh", RefreshRequest{RefreshToken: session.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/sign-out", RefreshRequest{RefreshToken: session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "sign-out requires an access token")

	rec = env.do(http.MethodPost, "/api/auth/sign-out", RefreshRequest{RefreshToken: session.RefreshToken}, session.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/refresh", RefreshRequest{RefreshToken: session.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileHandler_UpdateAndRead(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "ana@example.com", false)

	rec := env.do(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "ana@example.com", profile.DisplayName)

	name := "  Ana Souza "
	rec = env.do(http.MethodPut, "/api/profile", UpdateProfileRequest{FullName: &name}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "Ana Souza", profile.DisplayName)
	require.NotNil(t, profile.FullName)
	assert.Equal(t, "Ana Souza", *profile.FullName)
}

func TestProfileHandler_ContactIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/contact", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"whatsapp_url": "https://wa.me/5511999999999",
		"instagram_url": "https://www.instagram.com/perfumaria"
	}`, rec.Body.String())
}
