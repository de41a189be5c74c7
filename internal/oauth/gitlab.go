package oauth

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/gitlab"
)

const gitlabAPIURL = "https://gitlab.com"

type GitLab struct {
	codeFlow
}

// NewGitLab targets gitlab.com unless WithEndpoint and WithAPIURL point it at
// a self-managed instance.
func NewGitLab(clientID, clientSecret, redirectURL string, scopes []string, opts ...Option) *GitLab {
	if len(scopes) == 0 {
		scopes = []string{"read_user"}
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     gitlab.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}

	return &GitLab{codeFlow: newCodeFlow("gitlab", config, gitlabAPIURL, opts)}
}

type gitlabUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
	ConfirmedAt string `json:"confirmed_at"`
}

func (g *GitLab) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	client, err := g.exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	var user gitlabUser
	if err := getJSON(ctx, client, strings.TrimSuffix(g.apiURL, "/")+"/api/v4/user", &user); err != nil {
		return nil, err
	}

	return &Profile{
		ID:            strconv.FormatInt(user.ID, 10),
		Email:         user.Email,
		EmailVerified: user.ConfirmedAt != "",
		Name:          user.Name,
		Nickname:      user.Username,
		Avatar:        user.AvatarURL,
	}, nil
}

// oauth2Endpoint returns the endpoints of a self-managed GitLab at base.
func oauth2Endpoint(base string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  base + "/oauth/authorize",
		TokenURL: base + "/oauth/token",
	}
}
