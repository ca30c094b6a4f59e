// Package api exposes the supervisor over HTTP: connection status,
// telemetry snapshots, advisor recommendations, message publishing and the
// Prometheus scrape endpoint.
package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/advisor"
	"github.com/frain-dev/tether/api/models"
	"github.com/frain-dev/tether/pkg/log"
	"github.com/frain-dev/tether/queue"
	"github.com/frain-dev/tether/supervisor"
	"github.com/frain-dev/tether/util"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Supervisor *supervisor.Supervisor
	Advisor    *advisor.Client
	Logger     *log.Logger
}

type ApplicationHandler struct {
	Router http.Handler

	sup     *supervisor.Supervisor
	advisor *advisor.Client
	logger  *log.Logger
}

func NewApplicationHandler(opts Options) (*ApplicationHandler, error) {
	if opts.Supervisor == nil {
		return nil, errors.New("api: supervisor is required")
	}

	a := &ApplicationHandler{
		sup:     opts.Supervisor,
		advisor: opts.Advisor,
		logger:  opts.Logger,
	}

	if a.advisor == nil {
		a.advisor = advisor.NewClient(advisor.NewHeuristicAdvisor())
	}

	if a.logger == nil {
		a.logger = log.NewLogger(os.Stdout)
	}

	return a, nil
}

func (a *ApplicationHandler) BuildRoutes() *chi.Mux {
	router := chi.NewMux()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(a.requestLogger)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.Get("/health", a.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.GetStatusAll)
		r.Get("/status/{endpointName}", a.GetStatus)

		r.Get("/telemetry", a.GetTelemetryAll)
		r.Get("/telemetry/{endpointName}", a.GetTelemetry)

		r.Get("/advice/{endpointName}", a.GetAdvice)

		r.Route("/endpoints/{endpointName}", func(er chi.Router) {
			er.Post("/messages", a.SendMessage)
			er.Post("/connection", a.OpenConnection)
			er.Delete("/connection", a.CloseConnection)
		})
	})

	a.Router = router
	return router
}

// requestLogger puts a request-scoped log entry on the context so handlers
// log with the request id attached.
func (a *ApplicationHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.NewContext(r.Context(), a.logger, log.Fields{
			"request_id": chiMiddleware.GetReqID(r.Context()),
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *ApplicationHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, util.NewServerResponse("up", nil, http.StatusOK))
}

func (a *ApplicationHandler) GetStatusAll(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, util.NewServerResponse("endpoint statuses fetched successfully", a.sup.StatusAll(), http.StatusOK))
}

func (a *ApplicationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.sup.Status(chi.URLParam(r, "endpointName"))
	if err != nil {
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusNotFound, err)))
		return
	}

	_ = render.Render(w, r, util.NewServerResponse("endpoint status fetched successfully", st, http.StatusOK))
}

func (a *ApplicationHandler) GetTelemetryAll(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, util.NewServerResponse("telemetry fetched successfully", a.sup.TelemetryAll(), http.StatusOK))
}

func (a *ApplicationHandler) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	snap, err := a.sup.Telemetry(chi.URLParam(r, "endpointName"))
	if err != nil {
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusNotFound, err)))
		return
	}

	_ = render.Render(w, r, util.NewServerResponse("telemetry fetched successfully", snap, http.StatusOK))
}

func (a *ApplicationHandler) GetAdvice(w http.ResponseWriter, r *http.Request) {
	snap, err := a.sup.Telemetry(chi.URLParam(r, "endpointName"))
	if err != nil {
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusNotFound, err)))
		return
	}

	rec := a.advisor.Advise(r.Context(), snap)
	_ = render.Render(w, r, util.NewServerResponse("advice fetched successfully", rec, http.StatusOK))
}

func (a *ApplicationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessage
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		_ = render.Render(w, r, util.NewErrorResponse("request body is not valid json", http.StatusBadRequest))
		return
	}

	if err := req.Validate(); err != nil {
		_ = render.Render(w, r, util.NewServiceErrResponse(err))
		return
	}

	name := chi.URLParam(r, "endpointName")
	outcome, err := a.sup.Send(r.Context(), name, req.Payload, tether.Priority(req.Priority))
	if err != nil {
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(sendErrorCode(err), err)))
		return
	}

	status := http.StatusOK
	if outcome == supervisor.OutcomeQueued {
		status = http.StatusAccepted
	}

	resp := models.SendMessageResponse{Outcome: string(outcome)}
	_ = render.Render(w, r, util.NewServerResponse("message accepted", resp, status))
}

func (a *ApplicationHandler) OpenConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "endpointName")

	err := a.sup.Connect(r.Context(), name)
	switch {
	case err == nil:
		_ = render.Render(w, r, util.NewServerResponse("connection open", nil, http.StatusOK))
	case errors.Is(err, supervisor.ErrEndpointNotFound):
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusNotFound, err)))
	case errors.Is(err, supervisor.ErrRetryDeferred):
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusServiceUnavailable, err)))
	default:
		log.FromContext(r.Context()).WithError(err).Error("connect request failed")
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusBadGateway, err)))
	}
}

func (a *ApplicationHandler) CloseConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "endpointName")

	if err := a.sup.Disconnect(name); err != nil {
		if errors.Is(err, supervisor.ErrEndpointNotFound) {
			_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusNotFound, err)))
			return
		}

		log.FromContext(r.Context()).WithError(err).Error("disconnect request failed")
		_ = render.Render(w, r, util.NewServiceErrResponse(util.NewServiceError(http.StatusInternalServerError, err)))
		return
	}

	_ = render.Render(w, r, util.NewServerResponse("connection closed", nil, http.StatusOK))
}

func sendErrorCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrEndpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrReservedCapacity):
		return http.StatusTooManyRequests
	default:
		// fatal remote rejection surfaced from the transport
		return http.StatusBadGateway
	}
}
