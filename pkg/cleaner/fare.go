// pkg/cleaner/fare.go
package cleaner

import (
	"github.com/shopspring/decimal"
)

// EstimateFare approximates a fare from distance (miles) and duration
// (seconds) with the linear model in cfg, rounded to cfg.FareDecimals.
// Pass 0 for an unknown distance or duration.
func EstimateFare(distanceMiles, durationSec float64, cfg Config) float64 {
	km := decimal.NewFromFloat(distanceMiles).Mul(decimal.NewFromFloat(cfg.KmPerMile))
	minutes := decimal.NewFromFloat(durationSec).Div(decimal.NewFromInt(60))

	fare := decimal.NewFromFloat(cfg.BaseFare).
		Add(decimal.NewFromFloat(cfg.PerKmRate).Mul(km)).
		Add(decimal.NewFromFloat(cfg.PerMinuteRate).Mul(minutes))

	return fare.Round(cfg.FareDecimals).InexactFloat64()
}
