package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaramelBytes/stagewise/internal/results"
)

// Placeholder returns fixed sample results without contacting any service.
type Placeholder struct {
	latency time.Duration
}

// NewPlaceholder returns a Placeholder that waits latency before answering.
func NewPlaceholder(latency time.Duration) *Placeholder {
	return &Placeholder{latency: latency}
}

// Analyze reports the same milestones as the HTTP client. Clustering gets
// the sample topics; other families get an empty envelope with the
// submitted parameters echoed back.
func (p *Placeholder) Analyze(ctx context.Context, req Request, progress ProgressFunc) (results.Raw, error) {
	report(progress, ProgressRequestBuilt)
	report(progress, ProgressSent)
	if p.latency > 0 {
		if err := sleepCtx(ctx, p.latency); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(progress, ProgressReceived)
	var raw results.Raw
	if req.Family == "clustering" {
		raw = results.SampleRaw(fmt.Sprintf("Sample clustering results for %d column(s).", len(req.Params.SelectedColumns)))
	} else {
		raw = results.Raw{}
		raw["message"], _ = json.Marshal(fmt.Sprintf("Sample %s results.", req.Family))
		raw["parameters"], _ = json.Marshal(req.Params)
	}
	report(progress, ProgressDecoded)
	return raw, nil
}
