package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fitstogo/internal/photos"
)

func (s *Server) handleListPhotos(c echo.Context) error {
	id, _ := identity(c)
	list, err := s.deps.Photos.List(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleUploadPhoto(c echo.Context) error {
	id, _ := identity(c)
	in := photos.UploadInput{PhotoType: c.FormValue("photoType")}
	if header, err := c.FormFile("file"); err == nil {
		file, err := header.Open()
		if err != nil {
			return err
		}
		defer file.Close()
		in.Filename = header.Filename
		in.ContentType = header.Header.Get(echo.HeaderContentType)
		in.Size = header.Size
		in.Body = file
	}
	photo, err := s.deps.Photos.Upload(c.Request().Context(), id.UserID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, photo)
}

type updatePhotoRequest struct {
	IsDefault bool `json:"isDefault"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleUpdatePhoto(c echo.Context) error {
	id, _ := identity(c)
	var req updatePhotoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if !req.IsDefault {
		return echo.NewHTTPError(http.StatusBadRequest, "Only isDefault can be updated")
	}
	if err := s.deps.Photos.SetDefault(c.Request().Context(), id.UserID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleDeletePhoto(c echo.Context) error {
	id, _ := identity(c)
	if err := s.deps.Photos.Delete(c.Request().Context(), id.UserID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}
