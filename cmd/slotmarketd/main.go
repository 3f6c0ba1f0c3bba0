// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/coordinator"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
)

var (
	port   = flag.String("port", "8080", "API server port")
	env    = flag.String("env", "development", "Environment (development/production)")
	logLvl = flag.String("log-level", "info", "Log level (debug/info/warn/error)")

	slotWindow      = flag.Int("slot-window", 0, "Rolling window size in slots (0 = default)")
	slotDuration    = flag.Duration("slot-duration", 0, "Nominal slot duration (0 = default)")
	advanceInterval = flag.Duration("advance-interval", 0, "Clock tick period (0 = default)")
	baseFee         = flag.Float64("base-fee", 0, "Base fee per slot, in SOL (0 = default)")
	cuPerSlot       = flag.Uint64("cu-per-slot", 0, "Compute-unit budget per slot (0 = default)")
	aotDuration     = flag.Duration("aot-duration", 0, "Default AoT auction lifetime (0 = default)")
	aotMinLead      = flag.Uint64("aot-min-lead", 0, "Minimum slot lead for a new AoT auction (0 = default)")
	startingBalance = flag.Float64("starting-balance", 0, "Balance a session is seeded with, in SOL (0 = default)")
	eventBuffer     = flag.Int("event-buffer", 0, "Per-subscriber event channel buffer size (0 = default)")
)

func main() {
	flag.Parse()

	logger := log.NewWithLevel(*logLvl)
	defer logger.Sync()

	cfg := buildConfig()
	coord := coordinator.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)

	router := setupRouter(coord)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "err", err)
			os.Exit(1)
		}
	}()

	logger.Info("slotmarketd started", "port", *port, "env", *env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
}

func buildConfig() config.Config {
	cfg := config.Default()
	if *slotWindow > 0 {
		cfg.SlotWindow = *slotWindow
	}
	if *slotDuration > 0 {
		cfg.SlotDuration = *slotDuration
	}
	if *advanceInterval > 0 {
		cfg.AdvanceInterval = *advanceInterval
	}
	if *baseFee > 0 {
		cfg.BaseFee = money.FromFloatSOL(*baseFee)
	}
	if *cuPerSlot > 0 {
		cfg.CUPerSlot = *cuPerSlot
	}
	if *aotDuration > 0 {
		cfg.AotDuration = *aotDuration
	}
	if *aotMinLead > 0 {
		cfg.AotMinLead = *aotMinLead
	}
	if *startingBalance > 0 {
		cfg.StartingBalance = money.FromFloatSOL(*startingBalance)
	}
	if *eventBuffer > 0 {
		cfg.EventBuffer = *eventBuffer
	}
	return cfg
}

func setupRouter(coord *coordinator.Coordinator) *gin.Engine {
	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(coord.Metrics().Gatherer(), promhttp.HandlerOpts{})))
	router.GET("/ws/events", handleEventsWS(coord))

	v1 := router.Group("/v1")
	{
		v1.POST("/jit/bids", handleSubmitJitBid(coord))
		v1.POST("/aot/bids", handleSubmitAotBid(coord))
		v1.POST("/aot/auctions", handleOpenAotAuction(coord))

		v1.GET("/slots", handleListSlots(coord))
		v1.GET("/slots/current", handleCurrentSlot(coord))
		v1.GET("/slots/:number", handleGetSlot(coord))

		v1.GET("/transactions", handleListTransactions(coord))
		v1.GET("/transactions/:id", handleGetTransaction(coord))

		v1.GET("/stats", handleStats(coord))
	}

	return router
}

type submitBidRequest struct {
	Session      string          `json:"session" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	ComputeUnits uint64          `json:"compute_units"`
	Data         []byte          `json:"data"`
}

type submitAotBidRequest struct {
	submitBidRequest
	Slot uint64 `json:"slot" binding:"required"`
}

type bidResponse struct {
	TxID string `json:"tx_id"`
	Slot uint64 `json:"slot"`
}

func handleSubmitJitBid(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitBidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := ids.FromString(req.Session)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		res, err := coord.SubmitJitBid(session, money.FromSOL(req.Amount), req.ComputeUnits, req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, bidResponse{TxID: res.TxID.String(), Slot: uint64(res.Slot)})
	}
}

func handleSubmitAotBid(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitAotBidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := ids.FromString(req.Session)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		res, err := coord.SubmitAotBid(session, marketplace.Number(req.Slot), money.FromSOL(req.Amount), req.ComputeUnits, req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, bidResponse{TxID: res.TxID.String(), Slot: uint64(res.Slot)})
	}
}

type openAotAuctionRequest struct {
	Slot          uint64 `json:"slot" binding:"required"`
	DurationMilli int64  `json:"duration_ms"`
}

func handleOpenAotAuction(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req openAotAuctionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		dur := time.Duration(req.DurationMilli) * time.Millisecond
		if dur <= 0 {
			dur = buildConfig().AotDuration
		}

		if err := coord.OpenAotAuction(marketplace.Number(req.Slot), time.Now().Add(dur)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"slot": req.Slot})
	}
}

func handleListSlots(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"slots": coord.Marketplace().Window()})
	}
}

func handleCurrentSlot(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := coord.Marketplace().Current()
		slot, ok := coord.Marketplace().Get(n)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "current slot not tracked"})
			return
		}
		c.JSON(http.StatusOK, slot)
	}
}

func handleGetSlot(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := strconv.ParseUint(c.Param("number"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot number"})
			return
		}
		slot, ok := coord.Marketplace().Get(marketplace.Number(n))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "slot not tracked"})
			return
		}
		c.JSON(http.StatusOK, slot)
	}
}

func handleListTransactions(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryInt(c, "page", 0)
		limit := queryInt(c, "limit", 0)

		sessionParam := c.Query("session")
		if sessionParam == "" {
			c.JSON(http.StatusOK, gin.H{"transactions": coord.Transactions().ListAll(page, limit)})
			return
		}

		session, err := ids.FromString(sessionParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": coord.Transactions().ListBySession(session, page, limit)})
	}
}

func handleGetTransaction(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		txID, err := ids.FromString(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
			return
		}
		tx, ok := coord.Transactions().Get(txID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func handleStats(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := coord.Stats()
		c.JSON(http.StatusOK, gin.H{
			"current_slot":        uint64(stats.CurrentSlot),
			"active_jit_auctions": stats.ActiveJitAuctions,
			"active_aot_auctions": stats.ActiveAotAuctions,
			"total_transactions":  stats.TotalTransactions,
		})
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventsWS upgrades the connection and streams every broadcaster
// event to the client as a JSON text frame until it disconnects.
func handleEventsWS(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ch, id := coord.Events().Subscribe()
		defer coord.Events().Unsubscribe(id)

		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
