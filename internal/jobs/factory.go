package jobs

import (
	"time"

	"github.com/labstack/echo/v4"

	authmw "github.com/hivelearn/relay/internal/auth/middleware"
	"github.com/hivelearn/relay/internal/config"
	edomain "github.com/hivelearn/relay/internal/events/domain"
	ctrl "github.com/hivelearn/relay/internal/jobs/controller"
	"github.com/hivelearn/relay/internal/jobs/domain"
	svc "github.com/hivelearn/relay/internal/jobs/service"
	"github.com/hivelearn/relay/internal/platform/ratelimit"
	qdomain "github.com/hivelearn/relay/internal/quota/domain"
)

// Register wires the jobs module and registers HTTP routes. rl may be nil
// to disable burst rate limiting (tests).
func Register(e *echo.Echo, store domain.Store, ledger qdomain.Ledger, events edomain.Publisher, cfg config.Config, rl ratelimit.Store) *svc.Service {
	s := svc.New(store, ledger, events, svc.PoliciesFromConfig(cfg))
	c := ctrl.New(s)

	g := e.Group("/api/v1", authmw.NewJWT(cfg))
	var submitMW []echo.MiddlewareFunc
	if rl != nil {
		submitMW = append(submitMW, ratelimit.MiddlewareWithStore(ratelimit.Policy{
			Name:   "jobs:submit",
			Window: time.Minute,
			Limit:  600,
			Key:    ratelimit.KeyTenantOrIP("submit"),
		}, rl))
	}
	c.RegisterV1(g, submitMW...)
	return s
}
