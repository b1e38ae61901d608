package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		panic(err)
	}
	testDB = db

	code := m.Run()

	testDB.Teardown(ctx)
	os.Exit(code)
}

func TestLoginFlow_PasswordOnly(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("pw")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := ParseLoginResponse(resp)
	require.NoError(t, err)
	assert.True(t, data.Complete)
	assert.NotEmpty(t, data.Token)
	assert.Empty(t, data.ConfirmationToken)

	// The issued token works against authenticated endpoints.
	acctResp, err := ts.RequestWithAuth(http.MethodGet, "/account", data.Token, nil)
	require.NoError(t, err)
	defer acctResp.Body.Close()
	assert.Equal(t, http.StatusOK, acctResp.StatusCode)
}

func TestLoginFlow_EmailIdentifier(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("em")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := ParseLoginResponse(resp)
	require.NoError(t, err)
	assert.True(t, data.Complete)
}

func TestLoginFlow_InvalidCredentials(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("bad")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	for _, user := range []string{username, "no-such-" + username} {
		resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
			"user":     user,
			"password": "Wrong-password1",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		msg, err := GetErrorMessage(resp)
		require.NoError(t, err)
		assert.Equal(t, "These credentials do not match our records.", msg)
	}
}

func TestLoginFlow_LockoutAfterRepeatedFailures(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("lock")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
			"user":     username,
			"password": "Wrong-password1",
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// Correct password no longer helps.
	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// The attempts also landed in the audit table.
	attempts, err := testDB.Pool.Query(context.Background(),
		`SELECT COUNT(*) FROM login_attempts WHERE identifier = $1 AND success = false`, username)
	require.NoError(t, err)
	defer attempts.Close()
	require.True(t, attempts.Next())
	var count int
	require.NoError(t, attempts.Scan(&count))
	assert.Equal(t, 5, count)
}

func TestLoginFlow_TwoFactorEnrollmentAndCheckpoint(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("totp")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	// Log in and enroll the second factor.
	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login, err := ParseLoginResponse(resp)
	require.NoError(t, err)
	require.True(t, login.Complete)

	setupResp, err := ts.RequestWithAuth(http.MethodPost, "/account/two-factor", login.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, setupResp.StatusCode)

	var setup struct {
		Data struct {
			Secret    string `json:"secret"`
			ImageData string `json:"image_url_data"`
		} `json:"data"`
	}
	require.NoError(t, ParseJSONResponse(setupResp, &setup))
	require.NotEmpty(t, setup.Data.Secret)

	code, err := totp.GenerateCode(setup.Data.Secret, time.Now())
	require.NoError(t, err)

	confirmResp, err := ts.RequestWithAuth(http.MethodPut, "/account/two-factor", login.Token, map[string]string{
		"code": code,
	})
	require.NoError(t, err)
	confirmResp.Body.Close()
	require.Equal(t, http.StatusNoContent, confirmResp.StatusCode)

	// A fresh login now stops at the checkpoint.
	ts.ResetClient()
	resp, err = ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	checkpoint, err := ParseLoginResponse(resp)
	require.NoError(t, err)
	assert.False(t, checkpoint.Complete)
	require.Len(t, checkpoint.ConfirmationToken, 64)
	assert.Empty(t, checkpoint.Token)

	code, err = totp.GenerateCode(setup.Data.Secret, time.Now())
	require.NoError(t, err)

	cpResp, err := ts.Request(http.MethodPost, "/auth/login/checkpoint", map[string]string{
		"confirmation_token":  checkpoint.ConfirmationToken,
		"authentication_code": code,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, cpResp.StatusCode)

	final, err := ParseLoginResponse(cpResp)
	require.NoError(t, err)
	assert.True(t, final.Complete)
	assert.NotEmpty(t, final.Token)

	// The confirmation token was consumed with the checkpoint.
	replayResp, err := ts.Request(http.MethodPost, "/auth/login/checkpoint", map[string]string{
		"confirmation_token":  checkpoint.ConfirmationToken,
		"authentication_code": code,
	}, nil)
	require.NoError(t, err)
	defer replayResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, replayResp.StatusCode)
}

func TestAccountFlow_PasswordChange(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	username, email, password := TestCredentials("chg")
	_, err := SeedUser(context.Background(), testDB.DB, username, email, password)
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login, err := ParseLoginResponse(resp)
	require.NoError(t, err)

	const newPassword = "Brand-new-password9"
	changeResp, err := ts.RequestWithAuth(http.MethodPut, "/account/password", login.Token, map[string]string{
		"current_password": password,
		"new_password":     newPassword,
	})
	require.NoError(t, err)
	changeResp.Body.Close()
	require.Equal(t, http.StatusNoContent, changeResp.StatusCode)

	// Password change invalidates tokens issued before it.
	staleResp, err := ts.RequestWithAuth(http.MethodGet, "/account", login.Token, nil)
	require.NoError(t, err)
	staleResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, staleResp.StatusCode)

	// The old password no longer works, the new one does.
	oldResp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	oldResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, oldResp.StatusCode)

	newResp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     username,
		"password": newPassword,
	}, nil)
	require.NoError(t, err)
	defer newResp.Body.Close()
	assert.Equal(t, http.StatusOK, newResp.StatusCode)

	notified := ts.EmailService.LastEmail()
	require.NotNil(t, notified)
	assert.Equal(t, email, notified.To)
	assert.Equal(t, "password-changed", notified.Kind)
}

func TestSubuserFlow_GrantListRevoke(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	ownerName, ownerEmail, ownerPassword := TestCredentials("own")
	_, err := SeedUser(context.Background(), testDB.DB, ownerName, ownerEmail, ownerPassword)
	require.NoError(t, err)

	memberName, memberEmail, memberPassword := TestCredentials("mem")
	member, err := SeedUser(context.Background(), testDB.DB, memberName, memberEmail, memberPassword)
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"user":     ownerName,
		"password": ownerPassword,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login, err := ParseLoginResponse(resp)
	require.NoError(t, err)

	serverID := "11111111-2222-3333-4444-555555555555"

	grantResp, err := ts.RequestWithAuth(http.MethodPost, "/servers/"+serverID+"/users", login.Token, map[string]interface{}{
		"user":        memberEmail,
		"permissions": []string{"file.read", "control.console"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, grantResp.StatusCode)
	grantResp.Body.Close()

	listResp, err := ts.RequestWithAuth(http.MethodGet, "/servers/"+serverID+"/users", login.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var list struct {
		Data []struct {
			UserID      string   `json:"user_id"`
			Username    string   `json:"username"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, ParseJSONResponse(listResp, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, member.ID, list.Data[0].UserID)
	assert.Equal(t, []string{"control.console", "file.read"}, list.Data[0].Permissions)

	updateResp, err := ts.RequestWithAuth(http.MethodPut, "/servers/"+serverID+"/users/"+member.ID, login.Token, map[string]interface{}{
		"permissions": []string{"file.read"},
	})
	require.NoError(t, err)
	updateResp.Body.Close()
	require.Equal(t, http.StatusNoContent, updateResp.StatusCode)

	listResp, err = ts.RequestWithAuth(http.MethodGet, "/servers/"+serverID+"/users", login.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	require.NoError(t, ParseJSONResponse(listResp, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, []string{"file.read"}, list.Data[0].Permissions)

	revokeResp, err := ts.RequestWithAuth(http.MethodDelete, "/servers/"+serverID+"/users/"+member.ID, login.Token, nil)
	require.NoError(t, err)
	revokeResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, revokeResp.StatusCode)
}
