package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fitstogo/internal/services/kieai"
	"fitstogo/internal/store"
	"fitstogo/internal/tryon"
)

type createTryOnRequest struct {
	ProductID       string      `json:"productId"`
	UserPhotoID     string      `json:"userPhotoId"`
	GarmentImageURL string      `json:"garmentImageUrl"`
	Mask            *kieai.Mask `json:"mask"`
}

func (s *Server) handleTryOnHistory(c echo.Context) error {
	if c.QueryParam("history") != "true" {
		return c.JSON(http.StatusOK, []*store.TryOnSession{})
	}
	id, _ := identity(c)
	sessions, err := s.deps.TryOn.History(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []*store.TryOnSession{}
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleCreateTryOn(c echo.Context) error {
	id, _ := identity(c)
	var req createTryOnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	session, created, err := s.deps.TryOn.Create(c.Request().Context(), id.UserID, tryon.CreateInput{
		ProductID:       req.ProductID,
		UserPhotoID:     req.UserPhotoID,
		GarmentImageURL: req.GarmentImageURL,
		Mask:            req.Mask,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, session)
}

func (s *Server) handleGetTryOn(c echo.Context) error {
	id, _ := identity(c)
	session, err := s.deps.TryOn.Get(c.Request().Context(), id.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}
