package quota

import (
	"github.com/labstack/echo/v4"

	authmw "github.com/hivelearn/relay/internal/auth/middleware"
	"github.com/hivelearn/relay/internal/config"
	ctrl "github.com/hivelearn/relay/internal/quota/controller"
	"github.com/hivelearn/relay/internal/quota/domain"
	svc "github.com/hivelearn/relay/internal/quota/service"
)

// Register wires the quota module and registers HTTP routes.
func Register(e *echo.Echo, ledger domain.Ledger, cfg config.Config) {
	s := svc.New(ledger)
	c := ctrl.New(s)
	g := e.Group("/api/v1", authmw.NewJWT(cfg))
	c.RegisterV1(g)
}
