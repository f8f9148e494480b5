package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	pbcontext "github.com/allendavis-developer/pricebook/pkg/context"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = pbcontext.SetRequestID(ctx, requestID)
			ctx = pbcontext.SetMethod(ctx, req.Method)
			ctx = pbcontext.SetRoute(ctx, req.URL.Path)
			ctx = pbcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = pbcontext.SetReferer(ctx, req.Referer())

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
