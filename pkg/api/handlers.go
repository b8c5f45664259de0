package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/stats"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
)

// MetricsResponse is the body of /api/summary/metrics. Values are rounded
// to two decimals; null when no trip has a value.
type MetricsResponse struct {
	Trips        int64    `json:"trips"`
	AvgSpeedKmh  *float64 `json:"avg_speed_kmh"`
	AvgFarePerKm *float64 `json:"avg_fare_per_km"`
	TotalFare    *float64 `json:"total_fare"`
}

// ZoneCount is one entry of /api/summary/top-pickups
type ZoneCount struct {
	Zone  string `json:"zone"`
	Count int    `json:"count"`
}

// AnomalyResponse is one entry of /api/insights/anomalies
type AnomalyResponse struct {
	RowID    string  `json:"rowid"`
	SpeedKmh float64 `json:"speed_kmh"`
	Z        float64 `json:"z"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func (s *Server) storeError(c *gin.Context, err error) {
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, "store_error", "failed to query trips")
}

func filterFromQuery(c *gin.Context) store.Filter {
	return store.Filter{
		Start: strings.TrimSpace(c.Query("start")),
		End:   strings.TrimSpace(c.Query("end")),
	}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func queryFloat(c *gin.Context, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// listTrips returns stored trips ordered by pickup time
func (s *Server) listTrips(c *gin.Context) {
	limit, err := queryInt(c, "limit", s.cfg.DefaultLimit)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	trips, err := s.store.ListTrips(c.Request.Context(), filterFromQuery(c), store.Page{Limit: limit, Offset: offset})
	if errors.Is(err, store.ErrInvalidPage) {
		writeError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if err != nil {
		s.storeError(c, err)
		return
	}
	if trips == nil {
		trips = []model.StoredTrip{}
	}
	c.JSON(http.StatusOK, trips)
}

func (s *Server) summaryMetrics(c *gin.Context) {
	filter := filterFromQuery(c)
	value, err := s.cache.getOrLoad(cacheKey("metrics", filter.Start, filter.End), func() (interface{}, error) {
		summary, err := s.store.Summary(c.Request.Context(), filter)
		if err != nil {
			return nil, err
		}
		return MetricsResponse{
			Trips:        summary.Trips,
			AvgSpeedKmh:  round2(summary.AvgSpeedKmh),
			AvgFarePerKm: round2(summary.AvgFarePerKm),
			TotalFare:    round2(summary.TotalFare),
		}, nil
	})
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// topPickups returns the k most frequent pickup zones
func (s *Server) topPickups(c *gin.Context) {
	k, err := queryInt(c, "k", s.cfg.DefaultTopK)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if k < 0 {
		k = 0
	}

	filter := filterFromQuery(c)
	key := cacheKey("top-pickups", filter.Start, filter.End, strconv.Itoa(k))
	value, err := s.cache.getOrLoad(key, func() (interface{}, error) {
		zones, err := s.store.PickupZones(c.Request.Context(), filter)
		if err != nil {
			return nil, err
		}
		top := stats.TopKFrequent(zones, k)
		out := make([]ZoneCount, len(top))
		for i, ic := range top {
			out[i] = ZoneCount{Zone: ic.Item, Count: ic.Count}
		}
		return out, nil
	})
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// anomalies returns trips whose speed robust z-score reaches z
func (s *Server) anomalies(c *gin.Context) {
	threshold, err := queryFloat(c, "z", s.cfg.QueryThreshold)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if threshold < 0 {
		writeError(c, http.StatusBadRequest, "invalid_parameter", "z must be non-negative")
		return
	}

	rows, err := s.store.Speeds(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		s.storeError(c, err)
		return
	}

	speeds := make([]float64, len(rows))
	for i, r := range rows {
		speeds[i] = r.SpeedKmh
	}

	flagged := stats.ScoreAnomalies(speeds, threshold, s.cfg.MaxAnomalies)
	out := make([]AnomalyResponse, len(flagged))
	for i, a := range flagged {
		out[i] = AnomalyResponse{RowID: rows[a.Index].RowID, SpeedKmh: a.Value, Z: a.Z}
	}
	c.JSON(http.StatusOK, out)
}
