package acceptance

import (
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	resp := s.get("/health")

	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	s.decode(resp, &body)
	s.Equal("pass", body.Status)
	s.Contains(body.Checks, "postgres")
	s.Contains(body.Checks, "redis")
}

func (s *Suite) TestJWKSEndpoint() {
	resp := s.get("/.well-known/jwks.json")

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("public, max-age=300", resp.Header.Get("Cache-Control"))
	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	s.decode(resp, &body)
	s.NotNil(body.Keys)
}
