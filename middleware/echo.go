package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	goSignIn "github.com/MrEthical07/goSignIn"
)

// AccessKey is the echo.Context key EchoRequire stores the AccessResult
// under.
const AccessKey = "signin.access"

type echoRequest struct {
	c echo.Context
}

func (e echoRequest) Header(name string) string { return e.c.Request().Header.Get(name) }
func (e echoRequest) Query(name string) string  { return e.c.QueryParam(name) }

func (e echoRequest) Cookie(name string) string {
	c, err := e.c.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// EchoRequire is Require for echo. Denied requests get a JSON error body;
// admitted ones carry the AccessResult both in c.Get(AccessKey) and in the
// request context.
func EchoRequire(check goSignIn.Check) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if check == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			req := c.Request()
			ctx := goSignIn.WithUserAgent(goSignIn.WithClientIP(req.Context(), c.RealIP()), req.UserAgent())
			res := check(ctx, echoRequest{c: c})
			if res.Err != nil || !res.Authenticated {
				status := Status(res)
				return c.JSON(status, echo.Map{
					"error": string(goSignIn.KindOf(res.Err)),
				})
			}

			c.Set(AccessKey, res)
			c.SetRequest(req.WithContext(goSignIn.WithAccess(req.Context(), res)))
			return next(c)
		}
	}
}

// EchoAccess returns the AccessResult stored by EchoRequire.
func EchoAccess(c echo.Context) (goSignIn.AccessResult, bool) {
	res, ok := c.Get(AccessKey).(goSignIn.AccessResult)
	return res, ok
}
