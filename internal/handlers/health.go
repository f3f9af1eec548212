package handlers

import (
	"net/http"

	"github.com/gluk-w/claworc/log-viewer/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	activeTails := 0
	if Service != nil {
		activeTails = Service.Manager().Registry().Len()
	}
	subscribers := 0
	if Hub != nil {
		subscribers = Hub.Subscribers()
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"database":     dbStatus,
		"active_tails": activeTails,
		"subscribers":  subscribers,
	})
}
