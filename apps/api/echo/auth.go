package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/policy"
	"github.com/unihub/campus/core/session"
	"github.com/unihub/campus/core/user"
	identsvc "github.com/unihub/campus/services/identity"
)

const tokenContextKey = "userToken"

// newJWTConfig is the JWT auth middleware config.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(identsvc.TokenClaims),
	}
}

func getContextClaims(ctx echo.Context) (identsvc.TokenClaims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*identsvc.TokenClaims); ok {
			return *claims, nil
		}
	}
	return identsvc.TokenClaims{}, errUnauthorized
}

// sessionFromClaims rebuilds the policy input from the transmitted claims.
// The admin claim comes from the token, never from the profile record.
func sessionFromClaims(claims identsvc.TokenClaims) *session.Session {
	return &session.Session{
		UID:   claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  user.Role(claims.Role),
		Claim: session.ClaimVerified(claims.Admin),
	}
}

// guardMiddleware gates a route group on the policy evaluator's decision.
// Denials resolve to a 403 carrying the redirect target; they are never
// raised as internal errors.
func guardMiddleware(required user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			decision := policy.Evaluate(sessionFromClaims(claims), true, required)
			if decision.State == policy.Allowed {
				return next(ctx)
			}
			return echo.NewHTTPError(http.StatusForbidden, echo.Map{
				"message":  "permission denied",
				"redirect": decision.Redirect,
			})
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return guardMiddleware(user.RoleAdmin)
}
