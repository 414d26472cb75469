// Package observer serves a read-only JSON snapshot of a live run over
// HTTP. Off by default; enabled by config for watching long soak runs.
package observer

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stressforge/internal/engine/shm"
	"stressforge/pkg/utils/logger"
)

type workerView struct {
	Worker  int     `json:"worker"`
	State   string  `json:"state"`
	BogoOps uint64  `json:"bogoOps"`
	Runtime float64 `json:"runtimeSecs"`
}

type metricView struct {
	Worker int     `json:"worker"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
}

type snapshot struct {
	Stressor string       `json:"stressor"`
	RunID    string       `json:"runId"`
	TotalOps uint64       `json:"totalOps"`
	Workers  []workerView `json:"workers"`
	Metrics  []metricView `json:"metrics"`
}

// Server exposes GET /status for one region while a run is live.
type Server struct {
	srv *http.Server
}

// New builds the server. The region pointer stays owned by the caller;
// handlers only read atomics through it.
func New(addr, runID, stressor string, region *shm.Region) *Server {
	return &Server{srv: &http.Server{Addr: addr, Handler: newRouter(runID, stressor, region)}}
}

func newRouter(runID, stressor string, region *shm.Region) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(c *gin.Context) {
		now := time.Now().UnixNano()
		snap := snapshot{Stressor: stressor, RunID: runID, TotalOps: region.TotalOps()}
		for i := 0; i < region.Workers(); i++ {
			w := workerView{
				Worker:  i,
				State:   region.State(i).String(),
				BogoOps: region.Ops(i),
			}
			if start := region.StartNs(i); start > 0 {
				end := region.DoneNs(i)
				if end == 0 {
					end = now
				}
				w.Runtime = float64(end-start) / 1e9
			}
			snap.Workers = append(snap.Workers, w)
		}
		for _, m := range region.Metrics() {
			snap.Metrics = append(snap.Metrics, metricView{Worker: m.Worker, Label: m.Label, Value: m.Value})
		}
		c.JSON(http.StatusOK, snap)
	})
	return router
}

// Start serves in the background until Stop.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "status endpoint failed", zap.Error(err))
		}
	}()
	logger.Info(ctx, "status endpoint listening", zap.String("addr", s.srv.Addr))
}

// Stop shuts the endpoint down, bounded by the context.
func (s *Server) Stop(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(sctx)
}
