// Package routes wires the HTTP surface (`/`, `/watch/*path`, and a
// NoRoute-based `/{hash}/{msg_id}` fallback) to the
// FilePropCache/RangePlanner/StreamDriver pipeline, per spec.md §4.8.
package routes

import (
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/fleet"
	"github.com/everythingsuckz/streamgate/internal/propcache"
	"github.com/everythingsuckz/streamgate/internal/streamdriver"
)

// Route is one gin engine registration target, kept as its own type (rather
// than passing *gin.Engine directly) so additional per-route metadata can
// be threaded through later without changing every Load* signature.
type Route struct {
	Name   string
	Engine *gin.Engine
}

func (r *Route) Init(engine *gin.Engine) {
	r.Engine = engine
}

// Gateway holds everything a route handler needs to turn a (msg_id, hash)
// pair into an HTTP byte stream.
type Gateway struct {
	PropCache *propcache.Cache
	Fleet     *fleet.Fleet
	NewDriver func() *streamdriver.Driver
	ChunkSize int64
	StartTime time.Time
	Version   string
	BotHandle string
}

type allRoutes struct {
	log *zap.Logger
	gw  *Gateway
}

// Load registers every route method on allRoutes (LoadStatus, LoadWatch,
// LoadStream, ...) against r, using the teacher's reflect-based
// self-registration idiom so adding a new route is just adding a method.
func Load(log *zap.Logger, r *gin.Engine, gw *Gateway) {
	log = log.Named("routes")
	defer log.Sugar().Info("loaded all routes")

	r.Use(RequestID())

	route := &Route{Name: "/", Engine: r}
	route.Init(r)
	all := &allRoutes{log: log, gw: gw}

	typ := reflect.TypeOf(all)
	val := reflect.ValueOf(all)
	for i := 0; i < typ.NumMethod(); i++ {
		typ.Method(i).Func.Call([]reflect.Value{val, reflect.ValueOf(route)})
	}
}
