package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"

	"lis-trader/internal/models"
	"lis-trader/internal/observability"
	"lis-trader/internal/services"
	"lis-trader/internal/services/lis"
)

type APIHandler struct {
	index   *services.LiveIndex
	history *services.HistoryRecorder
	ranker  *services.Ranker
	trader  *lis.Trader
	watcher *services.SignalWatcher
	metrics *observability.Metrics
}

func SetupRoutes(r *gin.RouterGroup, index *services.LiveIndex, history *services.HistoryRecorder, ranker *services.Ranker, trader *lis.Trader, watcher *services.SignalWatcher, metrics *observability.Metrics) *APIHandler {
	handler := &APIHandler{
		index:   index,
		history: history,
		ranker:  ranker,
		trader:  trader,
		watcher: watcher,
		metrics: metrics,
	}

	r.GET("/scan", handler.Scan)
	r.GET("/offers", handler.ListOffers)
	r.GET("/offers/:name", handler.GetOffer)
	r.GET("/series/:name", handler.GetSeries)
	r.GET("/balance", handler.GetBalance)
	r.GET("/positions", handler.ListPositions)
	r.POST("/buy", handler.Buy)
	r.GET("/export/series/:name", handler.ExportSeries)

	return handler
}

func (h *APIHandler) Scan(c *gin.Context) {
	var filters models.ScanFilters
	filters.PriceFrom, _ = strconv.ParseFloat(c.DefaultQuery("price_from", "0"), 64)
	filters.PriceTo, _ = strconv.ParseFloat(c.DefaultQuery("price_to", "0"), 64)
	filters.OnlyUnlocked = c.Query("only_unlocked") == "1"
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))

	start := time.Now()
	ranked := h.ranker.Rank(c.Request.Context(), filters)
	if h.metrics != nil {
		h.metrics.Scans.Inc()
		h.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		for _, r := range ranked {
			h.metrics.Forecasts.With(prometheus.Labels{"source": string(r.Forecast.Source)}).Inc()
		}
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"count": len(ranked), "items": ranked}})
}

func (h *APIHandler) ListOffers(c *gin.Context) {
	offers := h.index.Snapshot()
	sort.Slice(offers, func(i, j int) bool { return offers[i].SkinName < offers[j].SkinName })
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"count": len(offers), "items": offers}})
}

func (h *APIHandler) GetOffer(c *gin.Context) {
	name, err := url.QueryUnescape(c.Param("name"))
	if err != nil || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	offer := h.index.Get(name)
	if offer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown skin"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": offer})
}

func (h *APIHandler) GetSeries(c *gin.Context) {
	name, err := url.QueryUnescape(c.Param("name"))
	if err != nil || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "168"))
	if hours <= 0 {
		hours = 168
	}
	points, err := h.history.SeriesWindow(name, time.Duration(hours)*time.Hour, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "series query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"count": len(points), "items": points}})
}

func (h *APIHandler) GetBalance(c *gin.Context) {
	bal, err := h.trader.Balance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"balance_usd": bal}})
}

func (h *APIHandler) ListPositions(c *gin.Context) {
	positions := h.watcher.Positions()
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": gin.H{"count": len(positions), "items": positions}})
}

type buyRequest struct {
	SkinName string  `json:"skin_name" binding:"required"`
	MaxPrice float64 `json:"max_price"`
}

func (h *APIHandler) Buy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "skin_name is required"})
		return
	}
	offer := h.index.Get(req.SkinName)
	if offer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "skin not in live index"})
		return
	}
	if req.MaxPrice > 0 && offer.Price > req.MaxPrice {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("price %.2f above max_price %.2f", offer.Price, req.MaxPrice)})
		return
	}
	result, err := h.trader.Buy(c.Request.Context(), *offer)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if h.metrics != nil {
		h.metrics.Buys.With(prometheus.Labels{"mode": result.Mode}).Inc()
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": result})
}

// ExportSeries streams the trailing price history of one skin as an xlsx
// workbook.
func (h *APIHandler) ExportSeries(c *gin.Context) {
	name, err := url.QueryUnescape(c.Param("name"))
	if err != nil || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "168"))
	if hours <= 0 {
		hours = 168
	}
	points, err := h.history.SeriesWindow(name, time.Duration(hours)*time.Hour, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "series query failed"})
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	headers := []string{"Timestamp", "Skin", "SkinID", "PriceUSD"}
	for i, hname := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, hname)
	}
	for row, p := range points {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row+2), p.Ts.Format(time.RFC3339))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row+2), p.SkinName)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row+2), p.SkinID)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row+2), p.Price)
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="series-%s.xlsx"`, url.PathEscape(name)))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
