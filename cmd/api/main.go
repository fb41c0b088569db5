package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/room"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/rules"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/seed"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/turn"
)

const runloopSleepInterval = 250 * time.Millisecond
const shutdownTimeout = time.Second * 10

var (
	cancelF     context.CancelFunc
	closing     uint32
	shutdownCtx context.Context
	sigs        chan os.Signal

	srv *http.Server
)

func main() {
	common.Log.Debug("installing signal handlers for match sync API")
	sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	shutdownCtx, cancelF = context.WithCancel(context.Background())

	common.RequireRedis()

	installAPI()

	common.Log.Debugf("running match sync API main loop")
	timer := time.NewTicker(runloopSleepInterval)
	defer timer.Stop()

	for !shuttingDown() {
		select {
		case sig := <-sigs:
			common.Log.Debugf("received signal: %s", sig)
			shutdown()
		case <-shutdownCtx.Done():
			close(sigs)
		case <-timer.C:
			// tick... no-op
		}
	}

	common.Log.Debug("exiting match sync API")
	cancelF()
}

func installAPI() {
	r := gin.New()
	r.Use(gin.Recovery())

	rules.InstallAPI(r)
	room.InstallAPI(r)
	seed.InstallAPI(r)
	turn.InstallAPI(r)

	r.GET("/status", statusHandler)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	srv = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("failed to run match sync API server; %s", err.Error())
		}
	}()

	common.Log.Debugf("match sync API listening on %s", listenAddr)
}

func statusHandler(c *gin.Context) {
	c.JSON(200, map[string]interface{}{
		"status": "ok",
	})
}

func shutdown() {
	if atomic.CompareAndSwapUint32(&closing, 0, 1) {
		common.Log.Debug("shutting down match sync API")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if srv != nil {
			srv.Shutdown(ctx)
		}
		cancelF()
	}
}

func shuttingDown() bool {
	return atomic.LoadUint32(&closing) > 0
}
