package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/testutil"
)

const password = "Secret1"

type cli struct {
	crm       *testutil.FakeCRM
	user      *domain.User
	tokenFile string
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	crm := testutil.NewFakeCRM(t)
	user := testutil.NewTestUser(testutil.WithName("Grace", "Hopper"))
	crm.AddUser(user, password)

	return &cli{crm: crm, user: user, tokenFile: filepath.Join(t.TempDir(), "cookies.json")}
}

// run executes one crmctl invocation, as a separate process would
func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--api-url", c.crm.BaseURL(), "--token-file", c.tokenFile}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	_, err := c.run(t, "login", "--email", c.user.Email, "--password", password)
	require.NoError(t, err)
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "invalid_email", args: []string{"--email", "nope", "--password", password}, wantErr: "email"},
		{name: "missing_password", args: []string{"--email", "a@example.com"}, wantErr: "password"},
		{name: "wrong_password", args: []string{"--email", "", "--password", "Wrong1"}, wantErr: "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			if tt.args[1] == "" {
				tt.args[1] = c.user.Email
			}

			_, err := c.run(t, append([]string{"login"}, tt.args...)...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("success", func(t *testing.T) {
		c := newCLI(t)

		out, err := c.run(t, "login", "--email", c.user.Email, "--password", password)

		require.NoError(t, err)
		got := decode[sessionOutput](t, out)
		assert.Equal(t, "authenticated", got.State)
		require.NotNil(t, got.User)
		assert.Equal(t, c.user.Email, got.User.Email)
		assert.FileExists(t, c.tokenFile)
	})
}

func TestRegister(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "register", "--email", "new@example.com", "--password", "Passw0rd", "--confirm", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "authenticated", decode[sessionOutput](t, out).State)

	_, err = c.run(t, "register", "--email", "new@example.com", "--password", "Passw0rd", "--confirm", "Passw0rd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSessionSharedAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "whoami")
	require.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, 0, c.crm.TotalCalls(), "no tokens means no network")

	c.login(t)

	out, err := c.run(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, c.user.ID, decode[sessionOutput](t, out).User.ID)

	_, err = c.run(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, 1, c.crm.Calls("POST /auth/logout"))

	_, err = c.run(t, "whoami")
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestRefresh(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "refresh")
	require.ErrorIs(t, err, ErrNotSignedIn)

	c.login(t)
	out, err := c.run(t, "refresh")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, out)
	assert.Equal(t, 1, c.crm.Calls("POST /auth/refresh"))

	c.crm.RevokeRefreshTokens()
	_, err = c.run(t, "refresh")
	require.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, 1, c.crm.Calls("POST /auth/logout"), "the session ends once")
}

func TestDeals(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	out, err := c.run(t, "deals", "create", "--title", "Renewal", "--currency", "USD", "--opportunity", "1200")
	require.NoError(t, err)
	created := decode[domain.CreatedDeal](t, out)
	id := strconv.Itoa(created.ID)

	out, err = c.run(t, "deals", "list", "--limit", "10")
	require.NoError(t, err)
	page := decode[domain.DealsPage](t, out)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Renewal", page.Items[0].Title)

	out, err = c.run(t, "deals", "update", id, "--title", "Renewal 2025")
	require.NoError(t, err)
	assert.Equal(t, "Renewal 2025", decode[domain.DealDetails](t, out).Title)

	out, err = c.run(t, "deals", "repeat", id)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, decode[domain.CreatedDeal](t, out).ID)

	_, err = c.run(t, "deals", "delete", id)
	require.NoError(t, err)

	_, err = c.run(t, "deals", "get", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Deal not found")
}

func TestDeals_InputErrors(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad_id", args: []string{"deals", "get", "abc"}, wantErr: `invalid deal id "abc"`},
		{name: "zero_id", args: []string{"deals", "delete", "0"}, wantErr: "invalid deal id"},
		{name: "blank_title", args: []string{"deals", "create", "--title", " "}, wantErr: "title"},
		{name: "bad_currency", args: []string{"deals", "create", "--title", "x", "--currency", "DOLLARS"}, wantErr: "currencyId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(t, tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Equal(t, 0, c.crm.Calls("POST /bitrix24/deals"))
}

func TestDeals_SessionRecovery(t *testing.T) {
	t.Run("expired_access_token", func(t *testing.T) {
		c := newCLI(t)
		c.login(t)
		c.crm.ExpireAccessTokens()

		_, err := c.run(t, "deals", "list")
		require.NoError(t, err)
		assert.Equal(t, 1, c.crm.Calls("POST /auth/refresh"))

		// the rotated pair was persisted for the next invocation
		_, err = c.run(t, "deals", "list")
		require.NoError(t, err)
		assert.Equal(t, 1, c.crm.Calls("POST /auth/refresh"))
	})

	t.Run("revoked_session", func(t *testing.T) {
		c := newCLI(t)
		c.login(t)
		c.crm.ExpireAccessTokens()
		c.crm.RevokeRefreshTokens()

		_, err := c.run(t, "deals", "list")
		require.ErrorIs(t, err, ErrNotSignedIn)

		calls := c.crm.TotalCalls()
		_, err = c.run(t, "whoami")
		require.ErrorIs(t, err, ErrNotSignedIn)
		assert.Equal(t, calls, c.crm.TotalCalls(), "tokens were removed")
	})
}

func TestProfile(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	out, err := c.run(t, "profile", "get")
	require.NoError(t, err)
	assert.Equal(t, "Grace", decode[domain.UserProfile](t, out).Name)

	out, err = c.run(t, "profile", "update", "--name", "Amazing Grace", "--phone", "555-0100")
	require.NoError(t, err)
	got := decode[domain.UserProfile](t, out)
	assert.Equal(t, "Amazing Grace", got.Name)
	assert.Equal(t, "555-0100", got.Phone)

	_, err = c.run(t, "profile", "update", "--email", "not-an-email")
	require.Error(t, err)
}
