package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/scraper"
)

const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// periodMultipliers annualize an amount quoted per period.
var periodMultipliers = map[string]float64{
	PeriodHourly:  2080,
	PeriodDaily:   260,
	PeriodWeekly:  52,
	PeriodMonthly: 12,
	PeriodYearly:  1,
}

var (
	salaryRangeRe = regexp.MustCompile(`(?i)([$€£]|usd|eur|gbp|cad|aud)?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?\s*(?:-|–|—|to)\s*([$€£]|usd|eur|gbp|cad|aud)?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?`)
	salarySingleRe = regexp.MustCompile(`(?i)([$€£]|usd|eur|gbp|cad|aud)\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?`)

	periodPatterns = []struct {
		re     *regexp.Regexp
		period string
	}{
		{regexp.MustCompile(`(?i)(/\s*(hr|hour|h)\b|per hour|hourly|an hour)`), PeriodHourly},
		{regexp.MustCompile(`(?i)(/\s*day\b|per day|daily|a day)`), PeriodDaily},
		{regexp.MustCompile(`(?i)(/\s*(wk|week)\b|per week|weekly|a week)`), PeriodWeekly},
		{regexp.MustCompile(`(?i)(/\s*(mo|month)\b|per month|monthly|a month)`), PeriodMonthly},
		{regexp.MustCompile(`(?i)(/\s*(yr|year|annum)\b|per year|per annum|yearly|annual|annually|a year)`), PeriodYearly},
	}
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// NormalizeSalary returns the annualized pay range, or nil when the posting
// discloses none. Structured fields win over free text.
func NormalizeSalary(raw scraper.RawJob) *Salary {
	minV, maxV := raw.SalaryMin, raw.SalaryMax
	currency := strings.ToUpper(strings.TrimSpace(raw.SalaryCurrency))
	period := NormalizePeriod(raw.SalaryPeriod)

	if minV <= 0 && maxV <= 0 {
		parsed, ok := ParseSalaryText(raw.SalaryText)
		if !ok {
			return nil
		}
		minV, maxV = parsed.Min, parsed.Max
		if currency == "" {
			currency = parsed.Currency
		}
		if period == "" {
			period = parsed.Period
		}
	}
	if period == "" {
		period = detectPeriod(raw.SalaryText)
	}
	return annualize(minV, maxV, currency, period)
}

// ParseSalaryText reads ranges such as "$50-60/hr" or "$120k – $150k". The
// amounts are returned as quoted; Period is empty when the text names none.
func ParseSalaryText(text string) (Salary, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Salary{}, false
	}

	var out Salary
	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		lo, errLo := parseAmount(m[2])
		hi, errHi := parseAmount(m[5])
		if errLo != nil || errHi != nil {
			return Salary{}, false
		}
		if m[6] != "" {
			hi *= 1000
			if m[3] != "" || lo < 1000 {
				lo *= 1000
			}
		} else if m[3] != "" {
			lo *= 1000
		}
		out.Min, out.Max = lo, hi
		out.Currency = currencyCode(m[1], m[4])
	} else if m := salarySingleRe.FindStringSubmatch(text); m != nil {
		v, err := parseAmount(m[2])
		if err != nil {
			return Salary{}, false
		}
		if m[3] != "" {
			v *= 1000
		}
		out.Min, out.Max = v, v
		out.Currency = currencyCode(m[1])
	} else {
		return Salary{}, false
	}
	if out.Min <= 0 && out.Max <= 0 {
		return Salary{}, false
	}
	out.Period = detectPeriod(text)
	return out, true
}

// NormalizePeriod maps period spellings onto the five known periods.
func NormalizePeriod(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "hour", "hourly", "hr", "per hour":
		return PeriodHourly
	case "day", "daily", "per day":
		return PeriodDaily
	case "week", "weekly", "wk", "per week":
		return PeriodWeekly
	case "month", "monthly", "mo", "per month":
		return PeriodMonthly
	case "year", "yearly", "annual", "annually", "yr", "per year":
		return PeriodYearly
	}
	return ""
}

func detectPeriod(text string) string {
	for _, p := range periodPatterns {
		if p.re.MatchString(text) {
			return p.period
		}
	}
	return ""
}

func annualize(minV, maxV float64, currency, period string) *Salary {
	if minV <= 0 {
		minV = maxV
	}
	if maxV <= 0 {
		maxV = minV
	}
	if minV > maxV {
		minV, maxV = maxV, minV
	}
	if period == "" {
		// bare small numbers are hourly rates in practice
		if maxV < 500 {
			period = PeriodHourly
		} else {
			period = PeriodYearly
		}
	}
	mult := periodMultipliers[period]
	return &Salary{
		Min:      math.Round(minV * mult),
		Max:      math.Round(maxV * mult),
		Currency: currency,
		Period:   period,
	}
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func currencyCode(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if code, ok := currencySymbols[c]; ok {
			return code
		}
		return strings.ToUpper(c)
	}
	return ""
}
