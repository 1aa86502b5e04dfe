// Package analysis is the boundary to the external service that runs the
// clustering or regression computation.
package analysis

import (
	"context"

	"github.com/KaramelBytes/stagewise/internal/results"
)

// Params is the configuration sent alongside the uploaded file.
type Params struct {
	SelectedColumns  []string `json:"selectedColumns"`
	Algorithm        string   `json:"algorithm"`
	NumClusters      *int     `json:"numClusters,omitempty"`
	PolynomialDegree *int     `json:"polynomialDegree,omitempty"`
}

// Request is one analysis submission.
type Request struct {
	FileName string
	Data     []byte
	Family   string
	Params   Params
}

// Milestones reported through ProgressFunc, in order.
const (
	ProgressRequestBuilt = 10
	ProgressSent         = 30
	ProgressReceived     = 80
	ProgressDecoded      = 90
)

// ProgressFunc receives lifecycle milestones in the range 0-100.
type ProgressFunc func(percent int)

// Service runs an analysis and returns the undecoded response fields.
type Service interface {
	Analyze(ctx context.Context, req Request, progress ProgressFunc) (results.Raw, error)
}

func report(fn ProgressFunc, p int) {
	if fn != nil {
		fn(p)
	}
}
