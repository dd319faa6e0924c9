package triggers

import (
	"context"
	"net/http"
	"strconv"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/reconcile"
	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"
)

// Runner is the reconciliation service as seen by the admin triggers.
type Runner interface {
	RunSync(ctx context.Context) reconcile.SyncSummary
	RunRecovery(ctx context.Context, hours int) reconcile.RecoverySummary
	RunPeriodic(ctx context.Context, hours int) reconcile.RecoverySummary
}

type controller struct {
	runner Runner
	diag   *kernel.AppDiagnostic
}

func RegisterController(rg *gin.RouterGroup, runner Runner, diag *kernel.AppDiagnostic) {
	ctl := &controller{runner: runner, diag: diag}
	g := rg.Group("/reconcile")

	g.POST("/sync", ctl.Sync)
	g.POST("/recovery", ctl.Recovery)
	g.POST("/periodic", ctl.Periodic)
}

func (ctl *controller) Sync(c *gin.Context) {
	span, ctx := ctl.diag.BeginTracing(c.Request.Context(), "trigger.sync")
	defer span.End()

	summary := ctl.runner.RunSync(ctx)
	respond(c, summary.Success, summary)
}

func (ctl *controller) Recovery(c *gin.Context) {
	span, ctx := ctl.diag.BeginTracing(c.Request.Context(), "trigger.recovery")
	defer span.End()

	hours, err := hoursParam(c)
	if err != nil {
		kernel.SpanGinErrf(span, c, http.StatusBadRequest, "invalid hours: %v", err)
		return
	}
	span.SetAttributes(attribute.KeyValue("recon.hours", hours))

	summary := ctl.runner.RunRecovery(ctx, hours)
	respond(c, summary.Success, summary)
}

func (ctl *controller) Periodic(c *gin.Context) {
	span, ctx := ctl.diag.BeginTracing(c.Request.Context(), "trigger.periodic")
	defer span.End()

	hours, err := hoursParam(c)
	if err != nil {
		kernel.SpanGinErrf(span, c, http.StatusBadRequest, "invalid hours: %v", err)
		return
	}
	span.SetAttributes(attribute.KeyValue("recon.hours", hours))

	summary := ctl.runner.RunPeriodic(ctx, hours)
	respond(c, summary.Success, summary)
}

// hoursParam reads ?hours=N. Absent means 0, which the service replaces
// with its configured lookback.
func hoursParam(c *gin.Context) (int, error) {
	raw := c.Query("hours")
	if raw == "" {
		return 0, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if hours < 0 {
		return 0, strconv.ErrRange
	}
	return hours, nil
}

func respond(c *gin.Context, success bool, summary any) {
	status := http.StatusOK
	if !success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, summary)
}
