package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/escalation"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HeaderAuthenticatedUser carries the id of the user the fronting host
// application has authenticated, if any.
const HeaderAuthenticatedUser = "X-Authenticated-User"

// Service is what the HTTP layer needs from lib.Service.
type Service interface {
	Verify(ctx context.Context, attempt verification.Attempt, who models.Requester) (models.Outcome, error)
	RequestVerification(ctx context.Context, nameOrEmail string) error
	Provision(ctx context.Context, userID uint, verified bool) (*models.VerificationRecord, error)
	Remove(ctx context.Context, userID uint) error
	Status(ctx context.Context, userID uint) (*lib.VerificationStatus, error)
	CountUnverified(ctx context.Context) (int64, error)
	RunTick(ctx context.Context) (escalation.TickResult, error)
	Link(userID uint, extended bool) string
}

var _ Service = (*lib.Service)(nil)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Sugar().Infow("Starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc Service) http.Handler {
	ctrl := &controller{log, svc}
	rateLimit := stdlib.NewMiddleware(limiter.New(memory.NewStore(), cfg.RequestRate()))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/verify", func(r chi.Router) {
		r.Get("/{user_id}/{timestamp}/{signature}", ctrl.verify(false))
		r.Get("/extended/{user_id}/{timestamp}/{signature}", ctrl.verify(true))
		r.With(rateLimit.Handler).Post("/request", ctrl.requestVerification)
	})

	creds := cfg.GetCreds()
	if len(creds) == 0 {
		log.Sugar().Warn("Admin API is disabled since no credentials are defined")
		return r
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BasicAuth("verimail", creds))

		r.Route("/accounts/{user_id}/verification", func(r chi.Router) {
			r.Post("/", ctrl.provision)
			r.Get("/", ctrl.status)
			r.Delete("/", ctrl.remove)
			r.Get("/link", ctrl.link)
		})
		r.Get("/verification/stats", ctrl.stats)
		r.Post("/escalation/tick", ctrl.tick)
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

// fail maps service errors onto status codes.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, accounts.ErrAccountNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateRecord):
		ctrl.reject(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrStoreUnavailable):
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		ctrl.reject(w, http.StatusServiceUnavailable, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

func (ctrl *controller) verify(extended bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err1 := parseUint(chi.URLParam(r, "user_id"))
		issuedAt, err2 := strconv.ParseInt(chi.URLParam(r, "timestamp"), 10, 64)
		if err1 != nil || err2 != nil {
			ctrl.resolve(w, http.StatusBadRequest, OutcomeView{}.From(models.OutcomeInvalidSignature))
			return
		}

		attempt := verification.Attempt{
			UserID:    userID,
			IssuedAt:  issuedAt,
			Signature: chi.URLParam(r, "signature"),
			Extended:  extended,
		}
		outcome, err := ctrl.svc.Verify(r.Context(), attempt, requester(r))
		if err != nil {
			ctrl.fail(w, err)
			return
		}

		status := http.StatusOK
		if outcome.Failed() {
			status = http.StatusBadRequest
		}
		ctrl.resolve(w, status, OutcomeView{}.From(outcome))
	}
}

// requestVerification always answers 202 so the response does not reveal
// whether the name or address is registered.
func (ctrl *controller) requestVerification(w http.ResponseWriter, r *http.Request) {
	nameOrEmail := strings.TrimSpace(r.FormValue("name_or_email"))
	if nameOrEmail == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("name_or_email is required"))
		return
	}

	if err := ctrl.svc.RequestVerification(r.Context(), nameOrEmail); err != nil {
		ctrl.log.Sugar().Errorw("Verification request failed", "err", err)
	}
	ctrl.resolve(w, http.StatusAccepted, map[string]any{
		"message": "If the account exists and still needs verification, a new link has been sent.",
	})
}

func (ctrl *controller) provision(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctrl.userID(w, r)
	if !ok {
		return
	}
	verified, _ := strconv.ParseBool(r.FormValue("verified"))

	rec, err := ctrl.svc.Provision(r.Context(), userID, verified)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, VerificationView{}.From(rec))
}

func (ctrl *controller) status(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctrl.userID(w, r)
	if !ok {
		return
	}

	status, err := ctrl.svc.Status(r.Context(), userID)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, VerificationView{}.FromStatus(status))
}

func (ctrl *controller) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctrl.userID(w, r)
	if !ok {
		return
	}

	if err := ctrl.svc.Remove(r.Context(), userID); err != nil {
		ctrl.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) link(w http.ResponseWriter, r *http.Request) {
	userID, ok := ctrl.userID(w, r)
	if !ok {
		return
	}
	extended, _ := strconv.ParseBool(r.URL.Query().Get("extended"))
	ctrl.resolve(w, http.StatusOK, map[string]any{"url": ctrl.svc.Link(userID, extended)})
}

func (ctrl *controller) stats(w http.ResponseWriter, r *http.Request) {
	n, err := ctrl.svc.CountUnverified(r.Context())
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"unverified": n})
}

func (ctrl *controller) tick(w http.ResponseWriter, r *http.Request) {
	res, err := ctrl.svc.RunTick(r.Context())
	body := map[string]any{"cohorts": res}
	if err != nil {
		body["error"] = err.Error()
		ctrl.resolve(w, http.StatusInternalServerError, body)
		return
	}
	ctrl.resolve(w, http.StatusOK, body)
}

func (ctrl *controller) userID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := parseUint(chi.URLParam(r, "user_id"))
	if err != nil || id == 0 {
		ctrl.reject(w, http.StatusBadRequest, errors.New("invalid user id"))
		return 0, false
	}
	return id, true
}

// requester reads the identity forwarded by the host application. A missing or
// malformed header means the link was followed anonymously.
func requester(r *http.Request) models.Requester {
	id, err := parseUint(r.Header.Get(HeaderAuthenticatedUser))
	if err != nil || id == 0 {
		return models.Anonymous
	}
	return models.Requester{Authenticated: true, UserID: id}
}

func parseUint(s string) (uint, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}
