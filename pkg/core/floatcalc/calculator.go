// Package floatcalc turns a normalized ownership breakdown and the S&P
// methodology rules into the float-share result. Everything here is pure: no
// I/O, no retries, no randomness.
package floatcalc

import (
	"math"

	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/models"
)

const (
	odPercentDecimals    = 4
	floatPercentDecimals = 2
)

// Compute applies the S&P float adjustment:
//
//	O+D%      = O+D / total * 100                   (4 dp)
//	strategic = O+D (only if O+D% >= threshold) + every other category
//	float     = total - strategic                   (integer, must be >= 0)
//	adjusted% = float / total * 100                 (2 dp, must be in [0, 100])
func Compute(record models.OwnershipRecord, rules models.MethodologyRules) (models.FloatShareResult, error) {
	total := record.TotalSharesOutstanding
	if total == 0 {
		return models.FloatShareResult{}, errs.InvalidInput("total shares outstanding is zero (document %s)", record.SourceDocumentID)
	}
	if total < 0 {
		return models.FloatShareResult{}, errs.InvalidInput("total shares outstanding is negative: %d", total)
	}
	if !(rules.DOThresholdPct > 0 && rules.DOThresholdPct <= 100) {
		return models.FloatShareResult{}, errs.InvalidInput("D&O threshold %.4f outside (0, 100]", rules.DOThresholdPct)
	}

	var res models.FloatShareResult
	res.TotalSharesOutstanding = total
	for i, c := range models.AllCategories {
		n := record.Shares(c)
		if n < 0 {
			return models.FloatShareResult{}, errs.InvalidInput("negative share count for %s: %d", c.Label(), n)
		}
		res.CategoryShares[i] = n
	}

	od := record.Shares(models.CategoryOD)
	res.ODPercentage = Round(float64(od)/float64(total)*100, odPercentDecimals)

	// The threshold gate applies to O+D only, and only here.
	if IsODStrategic(res.ODPercentage, rules.DOThresholdPct) {
		res.ODStrategicShares = od
	}

	strategic := res.ODStrategicShares
	for i, c := range models.AllCategories {
		if c == models.CategoryOD {
			continue
		}
		var ok bool
		if strategic, ok = addShares(strategic, res.CategoryShares[i]); !ok {
			return models.FloatShareResult{}, errs.InconsistentData("strategic share sum overflows at %s", c.Label())
		}
	}
	res.TotalStrategicShares = strategic

	res.FloatShares = total - strategic
	if res.FloatShares < 0 {
		return models.FloatShareResult{}, errs.InconsistentData(
			"strategic shares %d exceed total shares outstanding %d", strategic, total)
	}

	res.AdjustedFloatSharePercentage = Round(float64(res.FloatShares)/float64(total)*100, floatPercentDecimals)
	if res.AdjustedFloatSharePercentage < 0 || res.AdjustedFloatSharePercentage > 100 || math.IsNaN(res.AdjustedFloatSharePercentage) {
		return models.FloatShareResult{}, errs.InconsistentData(
			"adjusted float percentage %.4f outside [0, 100]", res.AdjustedFloatSharePercentage)
	}

	return res, nil
}

// IsODStrategic is the inclusive D&O threshold test.
func IsODStrategic(odPercentage, thresholdPct float64) bool {
	return odPercentage >= thresholdPct
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func addShares(a, b int64) (int64, bool) {
	s := a + b
	if b > 0 && s < a {
		return 0, false
	}
	return s, true
}
