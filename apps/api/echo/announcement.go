package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core/announce"
	"github.com/unihub/campus/core/user"
)

type announcementApi struct {
	deps ServerDeps
}

func registerAnnouncementAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := announcementApi{deps: deps}

	ag := g.Group("/announcements", jwt)
	ag.GET("/my", api.queryMine)
	ag.GET("", api.query, adminMiddleware())
	ag.POST("", api.create, posterMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.DELETE("/:id", api.destroy, adminMiddleware())
}

// posterMiddleware allows faculty and verified admins to post.
func posterMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			s := sessionFromClaims(claims)
			if s.Role == user.RoleFaculty || s.IsPrivileged() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func (api *announcementApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data announce.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ann, err := api.deps.AnnSvc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, ann)
}

// queryMine returns the ordered subset of the feed the caller is entitled
// to see, per the audience predicate.
func (api *announcementApi) queryMine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	usr, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}

	anns, err := api.deps.AnnSvc.QueryForViewer(ctx.Request().Context(), announce.ViewerFromProfile(usr))
	if err != nil {
		return errors.Wrap(err, "querying announcements for viewer")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *announcementApi) query(ctx echo.Context) error {
	anns, err := api.deps.AnnSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *announcementApi) retrieve(ctx echo.Context) error {
	ann, err := api.deps.AnnSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == announce.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding announcement by ID")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announcementApi) destroy(ctx echo.Context) error {
	if err := api.deps.AnnSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
