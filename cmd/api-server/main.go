package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"advodash/internal/dashboard"
	"advodash/internal/dataset"
	"advodash/internal/grpcserver"
	"advodash/internal/query"
	synchub "advodash/internal/sync"
	"advodash/pkg/utils"
)

func main() {
	cfg := utils.LoadConfig()

	cache := dataset.New(dataset.Config{
		SourcePath:     cfg.SourcePath,
		Sheet:          cfg.Sheet,
		MirrorPath:     cfg.MirrorPath,
		RebuildTimeout: cfg.RebuildTimeout,
	})
	defer cache.Close()

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := synchub.NewHub()
	cache.OnLoad(hub.DatasetLoaded)
	router.GET("/ws", synchub.WSHandler(hub))

	var grpcSrv *grpcserver.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcserver.NewServer(cfg.GRPCAddr)
		cache.OnLoad(grpcSrv.DatasetLoaded)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "source": cfg.SourcePath})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ds, err := cache.Get(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"error":      err.Error(),
				"ws_clients": stats.WSClients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"load_id":     ds.Meta().LoadID,
			"records":     ds.Len(),
			"from_mirror": ds.Meta().FromMirror,
			"ws_clients":  stats.WSClients,
		})
	})

	h := dashboard.NewHandler(cache, query.Limits{
		MinPageSize:     cfg.PageMin,
		MaxPageSize:     cfg.PageMax,
		DefaultPageSize: cfg.PageDefault,
	})
	h.CrossTabRows = cfg.CrossTabRows
	h.CrossTabCols = cfg.CrossTabCols
	h.RegisterRoutes(router.Group(""))

	// warm up so the first request doesn't pay for the parse
	go func() {
		if _, err := cache.Get(context.Background()); err != nil {
			log.Printf("initial dataset load failed: %v", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.Run(); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	cache.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	wg.Wait()
	log.Println("servers stopped")
}
