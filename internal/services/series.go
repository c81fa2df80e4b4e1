package services

import (
	"math"
	"time"

	"lis-trader/internal/models"
)

// seriesPoint is a compact (ts, price) pair used when preparing a model
// payload.
type seriesPoint struct {
	Ts    time.Time
	Price float64
}

func toSeriesPoints(points []models.PricePoint) []seriesPoint {
	out := make([]seriesPoint, 0, len(points))
	for _, p := range points {
		if !math.IsNaN(p.Price) && !math.IsInf(p.Price, 0) {
			out = append(out, seriesPoint{Ts: p.Ts, Price: p.Price})
		}
	}
	return out
}

// resampleByStep averages raw points into fixed step buckets.
func resampleByStep(series []seriesPoint, step time.Duration) []seriesPoint {
	if len(series) == 0 || step <= 0 {
		return series
	}
	var out []seriesPoint
	bucket := series[0].Ts.Truncate(step)
	var acc []seriesPoint
	flush := func() {
		if len(acc) == 0 {
			return
		}
		var sumP float64
		var sumT int64
		for _, p := range acc {
			sumP += p.Price
			sumT += p.Ts.UnixMilli()
		}
		n := int64(len(acc))
		out = append(out, seriesPoint{
			Ts:    time.UnixMilli(sumT / n),
			Price: sumP / float64(n),
		})
		acc = acc[:0]
	}
	for _, p := range series {
		b := p.Ts.Truncate(step)
		if !b.Equal(bucket) {
			flush()
			bucket = b
		}
		acc = append(acc, p)
	}
	flush()
	return out
}

// downsamplePAA reduces series to at most m points via piecewise aggregate
// approximation.
func downsamplePAA(series []seriesPoint, m int) []seriesPoint {
	n := len(series)
	if n == 0 || m <= 0 || n <= m {
		return series
	}
	out := make([]seriesPoint, 0, m)
	for i := 0; i < m; i++ {
		s := i * n / m
		e := (i + 1) * n / m
		var sumP float64
		var sumT int64
		c := 0
		for j := s; j < e; j++ {
			sumP += series[j].Price
			sumT += series[j].Ts.UnixMilli()
			c++
		}
		if c == 0 {
			continue
		}
		out = append(out, seriesPoint{
			Ts:    time.UnixMilli(sumT / int64(c)),
			Price: sumP / float64(c),
		})
	}
	return out
}

// toPctFromFirst expresses each point as a relative change from the first.
func toPctFromFirst(series []seriesPoint) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	p0 := series[0].Price
	if p0 <= 0 || math.IsNaN(p0) {
		return out
	}
	for i, p := range series {
		out[i] = (p.Price - p0) / p0
	}
	return out
}
