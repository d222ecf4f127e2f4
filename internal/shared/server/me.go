package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/server/middleware"
	"assessment-backend/internal/shared/server/respond"
)

func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	customerID := middleware.CustomerIDFromContext(c)
	if customerID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}
	body := gin.H{"customerUuid": customerID}
	if name := middleware.CustomerNameFromContext(c); name != "" {
		body["name"] = name
	}
	respond.OK(c, body)
}
