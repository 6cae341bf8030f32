package pubcover

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubcover/assetstore"
	"github.com/eringen/pubcover/ogimage"
	"github.com/eringen/pubcover/publish"
)

func (a *App) handleIndex(c echo.Context) error {
	ctx := c.Request().Context()
	assets, err := a.Store.ListAssets(ctx)
	if err != nil {
		return err
	}
	runs, err := a.Store.ListRuns(ctx, 20)
	if err != nil {
		return err
	}
	return Render(c, indexPage(assets, runs))
}

func handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// assetID returns the :id parameter. The router has already decoded it once;
// decoding again would fold ids such as "a%41" into "aA".
func assetID(c echo.Context) string {
	return c.Param("id")
}

func assetInfo(asset Asset) assetstore.AssetInfo {
	return assetstore.AssetInfo{
		ID:          asset.ID,
		Metadata:    asset.Metadata,
		ContentType: asset.ContentType,
		Size:        asset.Size,
		UpdatedAt:   asset.UpdatedAt,
	}
}

func (a *App) handleAssetList(c echo.Context) error {
	assets, err := a.Store.ListAssets(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]assetstore.AssetInfo, len(assets))
	for i, asset := range assets {
		out[i] = assetInfo(asset)
	}
	return c.JSON(http.StatusOK, out)
}

func (a *App) handleAssetInfo(c echo.Context) error {
	asset, err := a.Store.GetAsset(c.Request().Context(), assetID(c))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "asset not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, assetInfo(asset))
}

// handleAssetPut stores the request body at :id. A hash header, when
// present, must match the body.
func (a *App) handleAssetPut(c echo.Context) error {
	id := assetID(c)
	if !ValidID(id) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid asset id")
	}
	req := c.Request()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty body")
	}

	meta := assetstore.MetadataFromHeader(req.Header)
	sum := publish.Hash(data)
	if h := meta.Hash(); h != "" && !strings.EqualFold(h, sum) {
		return echo.NewHTTPError(http.StatusBadRequest, "hash does not match body")
	}
	meta[publish.MetaHash] = sum
	if meta[publish.MetaContentType] == "" {
		if ct := req.Header.Get(echo.HeaderContentType); ct != "" {
			meta[publish.MetaContentType] = ct
		}
	}

	ctx := req.Context()
	status := http.StatusOK
	if _, err := a.Store.GetAsset(ctx, id); errors.Is(err, ErrNotFound) {
		status = http.StatusCreated
	} else if err != nil {
		return err
	}
	if err := a.Store.PutAsset(ctx, id, data, meta); err != nil {
		return err
	}
	asset, err := a.Store.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	a.Logger.Info("asset stored", "id", id, "bytes", len(data), "hash", sum)
	return c.JSON(status, assetInfo(asset))
}

func (a *App) handleAssetRaw(c echo.Context) error {
	asset, data, err := a.Store.AssetData(c.Request().Context(), assetID(c))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "asset not found")
	}
	if err != nil {
		return err
	}
	return serveBlob(c, asset.ContentType, asset.Hash, data)
}

// handleOGPreview renders the cover of a stored post without publishing it.
func (a *App) handleOGPreview(c echo.Context) error {
	post, err := a.Store.GetPost(c.Param("slug"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return err
	}
	p, err := a.previews.get(post.Title)
	if errors.Is(err, ogimage.ErrTextOverflow) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "title does not fit the cover")
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set("X-Font-Size", strconv.Itoa(p.fontSize))
	return serveBlob(c, p.contentType, p.hash, p.data)
}

func serveBlob(c echo.Context, contentType, hash string, data []byte) error {
	etag := `"` + hash + `"`
	c.Response().Header().Set("ETag", etag)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && match == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (a *App) handleRunList(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(n, 1000)
	}
	runs, err := a.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}
