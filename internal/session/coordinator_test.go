package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/testutil"
)

func newCoordinator(pair domain.TokenPair) (*Coordinator, *testutil.MockAuthAPI, *testutil.MockStore, *testutil.RecordingNavigator) {
	api := testutil.NewMockAuthAPI()
	store := testutil.NewMockStore(pair)
	nav := &testutil.RecordingNavigator{}
	return New(api, store, nav), api, store, nav
}

func TestNew_StartsInitializing(t *testing.T) {
	c, _, _, _ := newCoordinator(domain.TokenPair{})

	snap := c.Snapshot()
	assert.Equal(t, Initializing, snap.State)
	assert.True(t, snap.IsLoading)
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
}

func TestCheckAuth_NoTokens(t *testing.T) {
	c, api, _, _ := newCoordinator(domain.TokenPair{})

	snap := c.CheckAuth(context.Background())

	assert.Equal(t, Unauthenticated, snap.State)
	assert.False(t, snap.IsLoading)
	assert.Zero(t, api.TotalCalls())
}

func TestCheckAuth_RefreshTokenOnly(t *testing.T) {
	user := testutil.NewTestUser()
	rotated := testutil.NewTestTokenPair()
	c, api, store, _ := newCoordinator(domain.TokenPair{RefreshToken: "refresh-1"})

	api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
		assert.Equal(t, "refresh-1", token)
		return &domain.AuthResponse{AccessToken: rotated.AccessToken, RefreshToken: rotated.RefreshToken}, nil
	}
	api.ProfileFunc = func(ctx context.Context) (*domain.User, error) {
		return user, nil
	}

	snap := c.CheckAuth(context.Background())

	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, user.ID, snap.User.ID)
	assert.Equal(t, 1, api.Calls("Refresh"))
	assert.Equal(t, 1, api.Calls("Profile"))
	assert.Equal(t, rotated, store.Pair())
}

// Every combination settles with isLoading=false and isAuthenticated matching user.
func TestCheckAuth_AlwaysSettles(t *testing.T) {
	user := testutil.NewTestUser()

	tests := []struct {
		name      string
		pair      domain.TokenPair
		profileOK bool
		refreshOK bool
		want      State
	}{
		{"no_tokens", domain.TokenPair{}, true, true, Unauthenticated},
		{"token_profile_ok", domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, true, false, Authenticated},
		{"token_profile_fails_refresh_ok", domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, false, true, Unauthenticated},
		{"token_profile_fails_refresh_fails", domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, false, false, Unauthenticated},
		{"refresh_only_refresh_ok_profile_ok", domain.TokenPair{RefreshToken: "r"}, true, true, Authenticated},
		{"refresh_only_refresh_fails", domain.TokenPair{RefreshToken: "r"}, true, false, Unauthenticated},
		{"refresh_only_profile_fails", domain.TokenPair{RefreshToken: "r"}, false, true, Unauthenticated},
		{"access_only_profile_fails", domain.TokenPair{AccessToken: "a"}, false, true, Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api, _, _ := newCoordinator(tt.pair)
			api.ProfileFunc = func(ctx context.Context) (*domain.User, error) {
				if tt.profileOK {
					return user, nil
				}
				return nil, &apiclient.APIError{StatusCode: 401}
			}
			api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
				if tt.refreshOK {
					return testutil.NewAuthResponse(nil), nil
				}
				return nil, &apiclient.APIError{StatusCode: 401}
			}

			snap := c.CheckAuth(context.Background())

			assert.False(t, snap.IsLoading)
			assert.Equal(t, tt.want, snap.State)
			assert.Equal(t, snap.User != nil, snap.IsAuthenticated)
			assert.LessOrEqual(t, api.Calls("Profile"), 2)
			assert.LessOrEqual(t, api.Calls("Refresh"), 1)
		})
	}
}

func TestCheckAuth_ProfileRetriedOnceAfterRefresh(t *testing.T) {
	user := testutil.NewTestUser()
	c, api, _, _ := newCoordinator(domain.TokenPair{AccessToken: "stale", RefreshToken: "r"})

	api.ProfileFunc = func(ctx context.Context) (*domain.User, error) {
		if api.Calls("Profile") == 1 {
			return nil, &apiclient.APIError{StatusCode: 401}
		}
		return user, nil
	}
	api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
		return testutil.NewAuthResponse(nil), nil
	}

	snap := c.CheckAuth(context.Background())

	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, 2, api.Calls("Profile"))
	assert.Equal(t, 1, api.Calls("Refresh"))
}

func TestLogin(t *testing.T) {
	t.Run("success_stores_returned_tokens", func(t *testing.T) {
		user := testutil.NewTestUser()
		resp := testutil.NewAuthResponse(user)
		c, api, store, nav := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			assert.Equal(t, domain.Credentials{Email: "ada@example.com", Password: "Secret1"}, creds)
			return resp, nil
		}

		result := c.Login(context.Background(), "ada@example.com", "Secret1")

		assert.Equal(t, Result{Success: true}, result)
		assert.Equal(t, resp.Tokens(), store.Pair())
		snap := c.Snapshot()
		assert.True(t, snap.IsAuthenticated)
		assert.Equal(t, Authenticated, snap.State)
		assert.False(t, snap.IsLoading)
		assert.Equal(t, user.Email, snap.User.Email)
		assert.Equal(t, LandingPath, nav.Last())
	})

	t.Run("server_message_is_surfaced", func(t *testing.T) {
		c, api, _, nav := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return nil, &apiclient.APIError{StatusCode: 401, Message: "Invalid credentials"}
		}

		result := c.Login(context.Background(), "a@b.c", "x")

		assert.Equal(t, Result{Error: "Invalid credentials"}, result)
		assert.Empty(t, nav.Paths())
	})

	t.Run("fallback_message", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return nil, testutil.ErrMockUnavailable
		}

		assert.Equal(t, Result{Error: "Login failed"}, c.Login(context.Background(), "a@b.c", "x"))
	})

	t.Run("failure_keeps_existing_session", func(t *testing.T) {
		user := testutil.NewTestUser()
		first := testutil.NewAuthResponse(user)
		c, api, store, _ := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			if creds.Password == "good" {
				return first, nil
			}
			return nil, &apiclient.APIError{StatusCode: 401, Message: "Invalid credentials"}
		}

		require.True(t, c.Login(context.Background(), user.Email, "good").Success)
		assert.False(t, c.Login(context.Background(), user.Email, "bad").Success)

		assert.True(t, c.Snapshot().IsAuthenticated)
		assert.Equal(t, first.Tokens(), store.Pair())
	})

	t.Run("incomplete_response_is_a_failure", func(t *testing.T) {
		c, api, store, _ := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return &domain.AuthResponse{AccessToken: "only-access"}, nil
		}

		assert.Equal(t, Result{Error: "Login failed"}, c.Login(context.Background(), "a@b.c", "x"))
		assert.Zero(t, store.Sets)
	})
}

func TestRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		user := testutil.NewTestUser()
		resp := testutil.NewAuthResponse(user)
		c, api, store, nav := newCoordinator(domain.TokenPair{})
		api.RegisterFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return resp, nil
		}

		assert.True(t, c.Register(context.Background(), user.Email, "Secret1").Success)
		assert.Equal(t, resp.Tokens(), store.Pair())
		assert.Equal(t, LandingPath, nav.Last())
	})

	t.Run("fallback_message", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{})
		api.RegisterFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return nil, &apiclient.APIError{StatusCode: 500}
		}

		assert.Equal(t, Result{Error: "Registration failed"}, c.Register(context.Background(), "a@b.c", "x"))
	})
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name      string
		remoteErr error
	}{
		{"remote_logout_succeeds", nil},
		{"remote_logout_fails", testutil.ErrMockUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testutil.NewTestUser()
			c, api, store, nav := newCoordinator(domain.TokenPair{})
			api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
				return testutil.NewAuthResponse(user), nil
			}
			api.LogoutFunc = func(ctx context.Context) error { return tt.remoteErr }
			require.True(t, c.Login(context.Background(), user.Email, "pw").Success)
			require.True(t, c.AcquireRefreshAttempt(3))

			c.Logout(context.Background())

			snap := c.Snapshot()
			assert.False(t, snap.IsAuthenticated)
			assert.Nil(t, snap.User)
			assert.False(t, snap.IsLoading)
			assert.Equal(t, Unauthenticated, snap.State)
			assert.Equal(t, domain.TokenPair{}, store.Pair())
			assert.Zero(t, c.RefreshAttempts())
			assert.Equal(t, 1, api.Calls("Logout"))
			assert.Equal(t, LoginPath, nav.Last())
		})
	}
}

func TestRefreshToken(t *testing.T) {
	t.Run("no_refresh_token_no_call", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{AccessToken: "a"})

		assert.False(t, c.RefreshToken(context.Background()))
		assert.Zero(t, api.TotalCalls())
	})

	t.Run("success_rotates_both_tokens", func(t *testing.T) {
		rotated := testutil.NewTestTokenPair()
		c, api, store, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			return &domain.AuthResponse{AccessToken: rotated.AccessToken, RefreshToken: rotated.RefreshToken}, nil
		}
		require.True(t, c.AcquireRefreshAttempt(3))

		assert.True(t, c.RefreshToken(context.Background()))
		assert.Equal(t, rotated, store.Pair())
		assert.Zero(t, c.RefreshAttempts())
	})

	t.Run("failure_keeps_tokens", func(t *testing.T) {
		pair := domain.TokenPair{AccessToken: "a", RefreshToken: "r"}
		c, api, store, _ := newCoordinator(pair)
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			return nil, &apiclient.APIError{StatusCode: 401}
		}

		assert.False(t, c.RefreshToken(context.Background()))
		assert.Equal(t, pair, store.Pair())
		assert.Zero(t, store.Sets)
	})

	t.Run("concurrent_callers_share_one_call", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		release := make(chan struct{})
		started := make(chan struct{})
		var once sync.Once
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			once.Do(func() { close(started) })
			<-release
			return testutil.NewAuthResponse(nil), nil
		}

		results := make(chan bool, 2)
		go func() { results <- c.RefreshToken(context.Background()) }()
		<-started
		go func() { results <- c.RefreshToken(context.Background()) }()

		// Give the second caller time to join the pending call.
		time.Sleep(20 * time.Millisecond)
		close(release)

		assert.True(t, <-results)
		assert.True(t, <-results)
		assert.Equal(t, 1, api.Calls("Refresh"))
	})

	t.Run("guard_cleared_after_settling", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			return nil, &apiclient.APIError{StatusCode: 500}
		}

		assert.False(t, c.RefreshToken(context.Background()))
		assert.False(t, c.RefreshToken(context.Background()))
		assert.Equal(t, 2, api.Calls("Refresh"))
	})

	t.Run("cancelled_caller_gets_false", func(t *testing.T) {
		c, api, store, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		release := make(chan struct{})
		done := make(chan struct{})
		rotated := testutil.NewAuthResponse(nil)
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			defer close(done)
			<-release
			return rotated, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.False(t, c.RefreshToken(ctx))
		close(release)
		<-done

		assert.Eventually(t, func() bool {
			return store.Pair() == rotated.Tokens()
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("logout_during_refresh_discards_tokens", func(t *testing.T) {
		c, api, store, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		release := make(chan struct{})
		started := make(chan struct{})
		api.RefreshFunc = func(ctx context.Context, token string) (*domain.AuthResponse, error) {
			close(started)
			<-release
			return testutil.NewAuthResponse(nil), nil
		}

		result := make(chan bool, 1)
		go func() { result <- c.RefreshToken(context.Background()) }()
		<-started
		c.Logout(context.Background())
		close(release)

		assert.False(t, <-result)
		assert.Equal(t, domain.TokenPair{}, store.Pair())
	})
}

func TestForceLogout(t *testing.T) {
	t.Run("current_epoch_logs_out", func(t *testing.T) {
		c, api, store, nav := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})

		c.ForceLogout(context.Background(), c.Epoch())

		assert.Equal(t, 1, api.Calls("Logout"))
		assert.Equal(t, domain.TokenPair{}, store.Pair())
		assert.Equal(t, Unauthenticated, c.Snapshot().State)
		assert.Equal(t, LoginPath, nav.Last())
	})

	t.Run("stale_epoch_is_ignored", func(t *testing.T) {
		c, api, _, _ := newCoordinator(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
		epoch := c.Epoch()

		c.ForceLogout(context.Background(), epoch)
		c.ForceLogout(context.Background(), epoch)
		c.ForceLogout(context.Background(), epoch)

		assert.Equal(t, 1, api.Calls("Logout"))
	})

	t.Run("new_login_survives_old_requests", func(t *testing.T) {
		user := testutil.NewTestUser()
		c, api, store, _ := newCoordinator(domain.TokenPair{})
		api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
			return testutil.NewAuthResponse(user), nil
		}
		oldEpoch := c.Epoch()
		require.True(t, c.Login(context.Background(), user.Email, "pw").Success)

		c.ForceLogout(context.Background(), oldEpoch)

		assert.True(t, c.Snapshot().IsAuthenticated)
		assert.NotEmpty(t, store.AccessToken())
		assert.Zero(t, api.Calls("Logout"))
	})
}

func TestAcquireRefreshAttempt(t *testing.T) {
	c, _, _, _ := newCoordinator(domain.TokenPair{})

	assert.True(t, c.AcquireRefreshAttempt(3))
	assert.True(t, c.AcquireRefreshAttempt(3))
	assert.True(t, c.AcquireRefreshAttempt(3))
	assert.Equal(t, 3, c.RefreshAttempts())

	assert.False(t, c.AcquireRefreshAttempt(3))
	assert.Zero(t, c.RefreshAttempts())
}

func TestSubscribe(t *testing.T) {
	user := testutil.NewTestUser()
	c, api, _, _ := newCoordinator(domain.TokenPair{})
	api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
		return testutil.NewAuthResponse(user), nil
	}

	var seen []State
	unsubscribe := c.Subscribe(func(s Snapshot) {
		seen = append(seen, s.State)
	})

	c.CheckAuth(context.Background())
	c.Login(context.Background(), user.Email, "pw")
	unsubscribe()
	unsubscribe()
	c.Logout(context.Background())

	assert.Equal(t, []State{Unauthenticated, Authenticated}, seen)
}

func TestSnapshot_IsACopy(t *testing.T) {
	user := testutil.NewTestUser(testutil.WithName("Ada", "Lovelace"))
	c, api, _, _ := newCoordinator(domain.TokenPair{})
	api.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
		return testutil.NewAuthResponse(user), nil
	}
	c.Login(context.Background(), user.Email, "pw")

	snap := c.Snapshot()
	snap.User.Name = "Mutated"

	assert.Equal(t, "Ada", c.Snapshot().User.Name)
	assert.Equal(t, "Ada Lovelace", c.Snapshot().User.DisplayName())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initializing", Initializing.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "unknown", State(42).String())
}
