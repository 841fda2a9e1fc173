package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/user"
	identsvc "github.com/unihub/campus/services/identity"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Identity       *identsvc.Service
		UserSvc        *user.Service
		AnnSvc         *announce.Service
		Profiles       user.Repository
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
		// ShutdownSignal receives when the error handler catches an
		// unrecoverable integrity error.
		ShutdownSignal() <-chan struct{}
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		shutdown chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan struct{}, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerAuthAPI(v1, jwt, s.deps)
	registerUserAPI(v1, jwt, s.deps)
	registerAnnouncementAPI(v1, jwt, s.deps)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.deps.Conf.Server.Address()))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// Shutdown reports a request from the error handler to stop the server
// (an unrecoverable integrity error was caught).
func (s *server) signalShutdown() {
	select {
	case s.shutdown <- struct{}{}:
	default:
	}
}

func (s *server) ShutdownSignal() <-chan struct{} { return s.shutdown }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Campus API!")
}
