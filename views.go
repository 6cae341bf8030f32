package pubcover

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pubcover/views"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func indexPage(assets []Asset, runs []RunEntry) templ.Component {
	rows := make([]views.AssetRow, len(assets))
	for i, a := range assets {
		rows[i] = views.AssetRow{ID: a.ID, Hash: a.Hash, ContentType: a.ContentType, Size: a.Size, UpdatedAt: a.UpdatedAt}
	}
	runRows := make([]views.RunRow, len(runs))
	for i, r := range runs {
		runRows[i] = views.RunRow{RunID: r.RunID, ID: r.ID, Status: r.Status, Error: r.Error, Recorded: r.Recorded}
	}
	return views.Index(rows, runRows)
}

func errorPage(code int, msg string) templ.Component {
	return views.Error(code, msg)
}
