package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/service"
)

type CountriesHandler struct {
	users *service.UsersService
}

func NewCountriesHandler(users *service.UsersService) *CountriesHandler {
	return &CountriesHandler{users: users}
}

func (h *CountriesHandler) List(c *gin.Context) {
	countries, err := h.users.ListCountries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Code: "INTERNAL"})
		return
	}

	type countryResponse struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Name string `json:"name"`
	}

	out := make([]countryResponse, 0, len(countries))
	for _, country := range countries {
		out = append(out, countryResponse{ID: country.ID, Code: country.Code, Name: country.Name})
	}
	c.JSON(http.StatusOK, out)
}
