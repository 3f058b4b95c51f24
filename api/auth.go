package api

import (
	"context"
	"net/http"
	"net/url"
)

// Register creates an account and returns it with a fresh token.
func (c *Client) Register(ctx context.Context, username, name, password string) (AuthResult, error) {
	body, err := c.do(ctx, request{
		op:       "register",
		method:   http.MethodPost,
		endpoint: c.authURL,
		body: map[string]string{
			"action":   "register",
			"username": username,
			"name":     name,
			"password": password,
		},
		fallback: "Registration failed",
		auth:     true,
	})
	if err != nil {
		return AuthResult{}, err
	}
	var res AuthResult
	if err := decode("register", body, &res); err != nil {
		return AuthResult{}, err
	}
	return res, nil
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	body, err := c.do(ctx, request{
		op:       "login",
		method:   http.MethodPost,
		endpoint: c.authURL,
		body: map[string]string{
			"action":   "login",
			"username": username,
			"password": password,
		},
		fallback: "Login failed",
		auth:     true,
	})
	if err != nil {
		return AuthResult{}, err
	}
	var res AuthResult
	if err := decode("login", body, &res); err != nil {
		return AuthResult{}, err
	}
	return res, nil
}

// SearchUsers matches query against usernames and display names. An empty
// query lists users without filtering.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	body, err := c.do(ctx, request{
		op:       "search_users",
		method:   http.MethodGet,
		endpoint: c.authURL,
		query:    url.Values{"search": {query}},
		fallback: "Failed to search users",
	})
	if err != nil {
		return nil, err
	}
	var res struct {
		Users []User `json:"users"`
	}
	if err := decode("search_users", body, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

// UpdateProfile changes the given fields of userID's profile. token must
// be the session token issued at login.
func (c *Client) UpdateProfile(ctx context.Context, userID int64, token string, update ProfileUpdate) (User, error) {
	payload := map[string]any{"user_id": userID}
	setIf := func(key string, v *string) {
		if v != nil {
			payload[key] = *v
		}
	}
	setIf("name", update.Name)
	setIf("username", update.Username)
	setIf("bio", update.Bio)
	setIf("avatar", update.Avatar)
	setIf("banner", update.Banner)

	body, err := c.do(ctx, request{
		op:       "update_profile",
		method:   http.MethodPut,
		endpoint: c.authURL,
		token:    token,
		body:     payload,
		fallback: "Update failed",
		auth:     true,
	})
	if err != nil {
		return User{}, err
	}
	var res struct {
		User User `json:"user"`
	}
	if err := decode("update_profile", body, &res); err != nil {
		return User{}, err
	}
	return res.User, nil
}
