package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse is the GET / contract of spec.md §4.8.
type StatusResponse struct {
	ServerStatus     string           `json:"server_status"`
	UptimeSeconds    int64            `json:"uptime_s"`
	BotHandle        string           `json:"bot_handle"`
	ConnectedClients int              `json:"connected_clients"`
	Loads            map[string]int64 `json:"loads"`
	Version          string           `json:"version"`
}

// LoadStatus registers GET / — gateway status JSON.
func (e *allRoutes) LoadStatus(r *Route) {
	log := e.log.Named("status")
	defer log.Info("loaded status route")
	r.Engine.GET("/", e.getStatus)
}

func (e *allRoutes) getStatus(ctx *gin.Context) {
	snapshot := e.gw.Fleet.Loads()

	// Fleet.Loads returns the snapshot sorted by load, descending, but loads
	// is a JSON object keyed by handle and encoding/json writes map keys in
	// alphabetical order, so the response does not carry the by-load order.
	loads := make(map[string]int64, len(snapshot))
	for _, l := range snapshot {
		loads[l.Handle] = l.Load
	}

	ctx.JSON(http.StatusOK, StatusResponse{
		ServerStatus:     "ok",
		UptimeSeconds:    int64(time.Since(e.gw.StartTime).Seconds()),
		BotHandle:        e.gw.BotHandle,
		ConnectedClients: e.gw.Fleet.Len(),
		Loads:            loads,
		Version:          e.gw.Version,
	})
}
