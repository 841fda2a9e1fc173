package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core/user"
	identsvc "github.com/unihub/campus/services/identity"
)

type authApi struct {
	deps ServerDeps
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{deps: deps}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/set-admin-claim", api.setAdminClaim)

	tg := ag.Group("", jwt)
	tg.POST("/token-refresh", api.refreshToken)
	tg.POST("/logout", api.logout)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	_, token, err := api.deps.Identity.SignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case identsvc.ErrInvalidCredentials:
			return errAuthenticationFailed
		case identsvc.ErrAccountDeactivated:
			return errAccountDeactivated
		}
		return errors.Wrap(err, "signing in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// setAdminClaim is the privileged endpoint instructing the identity provider
// to attach the admin claim. It verifies the server-side-trusted role before
// touching the provider and book-keeps the attachment on the profile record.
// Idempotent: repeat calls are safe.
func (api *authApi) setAdminClaim(ctx echo.Context) error {
	var data SetAdminClaimRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetAdminClaimRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.deps.Profiles.GetUserByID(reqCtx, data.UID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.Role != user.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "user must have admin role to receive admin claims")
	}

	if err := api.deps.Identity.SetCustomClaim(reqCtx, usr.ID, true); err != nil {
		return errors.Wrap(err, "attaching admin claim")
	}
	if err := api.deps.Profiles.SetAdminClaimFlag(reqCtx, usr.ID, true); err != nil {
		return errors.Wrap(err, "book-keeping admin claim flag")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: "admin claim set successfully"})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	token, err := api.deps.Identity.RefreshToken(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == identsvc.ErrAccountDeactivated {
			return errAccountDeactivated
		}
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.Identity.SignOut(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: "signed out"})
}
