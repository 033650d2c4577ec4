package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"fitstogo/internal/catalog"
	"fitstogo/internal/clicks"
	"fitstogo/internal/logging"
)

func (s *Server) handleListProducts(c echo.Context) error {
	filter := catalog.Filter{
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
		Platform: c.QueryParam("platform"),
		Category: c.QueryParam("category"),
		MinPrice: queryFloat(c, "minPrice"),
		MaxPrice: queryFloat(c, "maxPrice"),
		Search:   c.QueryParam("search"),
		Sort:     c.QueryParam("sort"),
	}
	page, err := s.deps.Catalog.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetProduct(c echo.Context) error {
	product, err := s.deps.Catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, product)
}

func (s *Server) handleCategories(c echo.Context) error {
	categories, err := s.deps.Catalog.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, categories)
}

func (s *Server) handleRedirect(c echo.Context) error {
	visit := clicks.Visit{
		ProductID: c.Param("productId"),
		IP:        clicks.ClientIP(c.Request().Header),
		UserAgent: c.Request().UserAgent(),
	}
	if id, ok := identity(c); ok {
		visit.UserID = id.UserID
	}
	fallback := strings.TrimRight(s.deps.Config.Paths.AppURL, "/") + clicks.FallbackPath
	target, found, err := s.deps.Clicks.Redirect(c.Request().Context(), visit)
	if err != nil {
		logging.WarnWithContext(s.logger, "click redirect failed; sending visitor to catalog", "redirect_failed",
			logging.String(logging.FieldProductID, visit.ProductID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "click not recorded"),
		)
		return c.Redirect(http.StatusFound, fallback)
	}
	if !found {
		return c.Redirect(http.StatusFound, fallback)
	}
	return c.Redirect(http.StatusFound, target)
}

// queryInt returns 0 for missing or malformed values so paging defaults apply.
func queryInt(c echo.Context, name string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil {
		return 0
	}
	return value
}

func queryFloat(c echo.Context, name string) *float64 {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}
