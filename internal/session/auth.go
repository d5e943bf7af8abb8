package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/remote"
)

// Credentials are the login and registration form fields.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks both fields are present.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// Auth runs the login, registration and logout flows.
type Auth struct {
	session   *Session
	public    *remote.Client // no credential attached
	protected *remote.Client
	logger    *slog.Logger
}

// NewAuth creates an Auth talking to baseURL over base.
func NewAuth(s *Session, baseURL string, base http.RoundTripper) (*Auth, error) {
	public, err := remote.New(baseURL, base)
	if err != nil {
		return nil, err
	}
	protected, err := s.Client(baseURL, base)
	if err != nil {
		return nil, err
	}
	return &Auth{session: s, public: public, protected: protected, logger: s.logger}, nil
}

// Login exchanges credentials for a bearer token and stores it.
func (a *Auth) Login(ctx context.Context, c Credentials) error {
	if err := c.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.public.JSON(ctx, http.MethodPost, "/Login", c, &out); err != nil {
		return rejected(err)
	}
	if out.AccessToken == "" {
		return apperr.Parse(http.StatusOK, "Login response did not include an access token", nil)
	}
	if err := a.session.set(out.AccessToken); err != nil {
		return err
	}
	a.logger.Info("session: logged in", slog.String("username", c.Username))
	return nil
}

// Register creates an account. An existing username matches
// apperr.ErrAlreadyExists.
func (a *Auth) Register(ctx context.Context, c Credentials) error {
	if err := c.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	err := rejected(a.public.JSON(ctx, http.MethodPost, "/Register", c, nil))
	if err != nil && apperr.StatusOf(err) == http.StatusConflict {
		return &apperr.Error{
			Kind:    apperr.KindRemote,
			Status:  http.StatusConflict,
			Message: "The user already exists",
			Err:     apperr.ErrAlreadyExists,
		}
	}
	return err
}

// Logout notifies the backend and always clears the local credential, even
// when the call fails.
func (a *Auth) Logout(ctx context.Context) error {
	defer a.session.invalidate(ReasonLogout)
	if !a.session.Authenticated() {
		return nil
	}
	err := a.protected.JSON(ctx, http.MethodPost, "/Logout", nil, nil)
	if err != nil && !errors.Is(err, apperr.ErrUnauthenticated) {
		a.logger.Warn("session: logout call failed", slog.String("error", err.Error()))
	}
	return nil
}

// rejected turns a 401 from a public endpoint into a Remote error. Wrong
// credentials are not an expired session and must not ask for a new login.
func rejected(err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindAuth {
		return err
	}
	msg := ae.Message
	if msg == apperr.Auth(0, "").Message {
		msg = "Invalid username or password"
	}
	return apperr.Remote(http.StatusUnauthorized, msg)
}
