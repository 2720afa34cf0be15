package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/airfield-ops/internal/websocket"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// Router wires the HTTP routes
type Router struct {
	handler        *Handler
	wsServer       *websocket.Server
	allowedOrigins []string
	staticDir      string
	requestTimeout time.Duration
	logger         *logger.Logger
}

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	AllowedOrigins []string
	StaticDir      string
	RequestTimeout time.Duration
}

// NewRouter creates a new router. wsServer may be nil.
func NewRouter(handler *Handler, wsServer *websocket.Server, cfg RouterConfig, log *logger.Logger) *Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Router{
		handler:        handler,
		wsServer:       wsServer,
		allowedOrigins: cfg.AllowedOrigins,
		staticDir:      cfg.StaticDir,
		requestTimeout: cfg.RequestTimeout,
		logger:         log.Named("router"),
	}
}

// Routes returns the root handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(rt.cors)

	h := rt.handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(rt.requestTimeout))

		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)
		r.Get("/board", h.GetBoard)
		r.Get("/map", h.GetMap)
		r.Get("/patterns/{runway}", h.GetPattern)

		r.Route("/flights", func(r chi.Router) {
			r.Get("/", h.ListFlights)
			r.Post("/", h.CreateFlight)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetFlight)
				r.Get("/events", h.GetFlightEvents)
				r.Get("/log", h.GetFlightLog)

				r.Post("/ready", h.transition(h.flights.MarkReady))
				r.Post("/push", h.transition(h.flights.PushToTower))
				r.Post("/start", h.transition(h.flights.Start))
				r.Post("/taxi", h.TaxiToPoint)
				r.Post("/takeoff", h.transition(h.flights.RecordTakeoff))
				r.Post("/position", h.RecordPosition)
				r.Post("/pattern-leg", h.RecordPatternLeg)
				r.Post("/go-around", h.transition(h.flights.RecordGoAround))
				r.Post("/landing", h.transition(h.flights.RecordLanding))
				r.Post("/after-landing", h.TaxiAfterLanding)
				r.Post("/shutdown", h.transition(h.flights.RecordShutdown))
			})
		})

		r.Route("/state", func(r chi.Router) {
			r.Get("/runway", h.GetRunway)
			r.Put("/runway", h.SetRunway)
			r.Get("/vor", h.GetVOR)
			r.Put("/vor", h.SetVOR)
		})
	})

	if rt.wsServer != nil {
		r.Get("/ws", rt.wsServer.HandleConnection)
	}

	if rt.staticDir != "" {
		r.Handle("/*", NewStaticFileHandler(rt.staticDir, rt.logger))
	}

	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// cors answers preflight requests and tags responses for allowed origins
func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	for _, o := range rt.allowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
