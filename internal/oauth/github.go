package oauth

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIURL = "https://api.github.com"

// GitHub reads the account from the REST API. The primary verified address
// from /user/emails wins over the public profile email.
type GitHub struct {
	codeFlow
}

func NewGitHub(clientID, clientSecret, redirectURL string, scopes []string, opts ...Option) *GitHub {
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     github.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}

	return &GitHub{codeFlow: newCodeFlow("github", config, githubAPIURL, opts)}
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	client, err := g.exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := getJSON(ctx, client, g.apiURL+"/user", &user); err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:       strconv.FormatInt(user.ID, 10),
		Email:    user.Email,
		Name:     user.Name,
		Nickname: user.Login,
		Avatar:   user.AvatarURL,
	}

	var emails []githubEmail
	if err := getJSON(ctx, client, g.apiURL+"/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				profile.EmailVerified = true
				break
			}
		}
		if !profile.EmailVerified {
			for _, e := range emails {
				if strings.EqualFold(e.Email, profile.Email) {
					profile.EmailVerified = e.Verified
				}
			}
		}
	}

	return profile, nil
}
