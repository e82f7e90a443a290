package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "FinSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 and logs it with the request id
// and stack. The connection stays usable for the next request.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("handler panic",
					applogger.Error(perr),
					applogger.String("route", c.Path()),
					applogger.String("request_id", requestID(c)),
					applogger.String("stack", string(debug.Stack())),
				)
				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": http.StatusText(http.StatusInternalServerError),
					})
				}
			}()
			return next(c)
		}
	}
}
