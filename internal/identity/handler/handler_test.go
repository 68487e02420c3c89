package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"ncc/internal/identity/models"
	"ncc/internal/identity/service"
	"ncc/internal/identity/store/account"
	"ncc/internal/identity/store/revocation"
	"ncc/internal/identity/token"
	"ncc/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	service *service.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(account.NewInMemory(), revocation.NewInMemoryTRL(),
		token.New("handler-key", "ncc-test", time.Hour),
		service.WithLogger(logger),
		service.WithBcryptCost(bcrypt.MinCost),
	)
	s.Require().NoError(err)
	s.service = svc

	r := chi.NewRouter()
	New(svc, svc, logger).Register(r)
	s.router = r

	_, err = svc.CreateAccount(context.Background(), "alice@example.com", "secret1", "Alice")
	s.Require().NoError(err)
}

func (s *HandlerSuite) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return testutil.Serve(s.router, req)
}

func (s *HandlerSuite) login() string {
	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	return testutil.DecodeJSON[models.LoginResult](s.T(), rec).AccessToken
}

func (s *HandlerSuite) TestLogin() {
	s.Run("valid credentials return a token", func() {
		s.NotEmpty(s.login())
	})

	s.Run("bad credentials return 401", func() {
		rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "wrong",
		})
		s.Contains(rec.Body.String(), "invalid email or password")
		testutil.AssertError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("unknown fields return 400", func() {
		rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestSessionAndLogout() {
	accessToken := s.login()

	rec := s.do(http.MethodGet, "/auth/session", accessToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	session := testutil.DecodeJSON[models.Session](s.T(), rec)
	s.Equal("alice@example.com", session.Email)

	rec = s.do(http.MethodPost, "/auth/logout", accessToken, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/auth/session", accessToken, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestSessionRequiresToken() {
	rec := s.do(http.MethodGet, "/auth/session", "", nil)
	testutil.AssertError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}
