package acceptance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

func (s *Suite) postJSON(path string, body any, headers ...string) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	return s.request(http.MethodPost, path, payload, headers...)
}

func (s *Suite) get(path string, headers ...string) *http.Response {
	return s.request(http.MethodGet, path, nil, headers...)
}

// request sends through the suite client, which keeps cookies between calls.
// headers are name/value pairs.
func (s *Suite) request(method, path string, payload []byte, headers ...string) *http.Response {
	req, err := http.NewRequest(method, s.BaseURL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *Suite) verifyEmail(email string) {
	_, err := s.Postgres.DB.Exec(`UPDATE users SET email_verified_at = $1 WHERE email = $2`, time.Now(), email)
	s.Require().NoError(err)
}

func (s *Suite) registerVerified(email string) {
	resp := s.postJSON("/auth/register", map[string]string{
		"name":     "Ada",
		"email":    email,
		"password": "Password123",
	})
	resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.verifyEmail(email)
}
