package observability

import (
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

// Components that report errors outside the strategy chain.
const (
	ComponentEngine = "engine"
	ComponentSink   = "sink"
	ComponentStore  = "store"
	ComponentCache  = "cache"
)

// ErrorType is the metrics label for err: the kind of a strategy error, or
// what the strategy classifier makes of anything else.
func ErrorType(err error) string {
	if err == nil {
		return string(scraper.ErrUnknown)
	}
	return string(scraper.Classify(err, "").Kind)
}
