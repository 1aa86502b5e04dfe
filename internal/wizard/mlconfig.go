package wizard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Family is the kind of analysis requested.
type Family string

const (
	FamilyClustering     Family = "clustering"
	FamilyRegression     Family = "regression"
	FamilyClassification Family = "classification"
)

const (
	AlgorithmKMeans     = "kmeans"
	AlgorithmDBSCAN     = "dbscan"
	AlgorithmLinear     = "linear"
	AlgorithmPolynomial = "polynomial"
)

const (
	DefaultNumClusters      = 3
	DefaultPolynomialDegree = 2
)

// MLConfiguration is a tagged variant keyed by Kind. NumClusters is only
// set for clustering and PolynomialDegree only for polynomial regression.
type MLConfiguration struct {
	Kind             Family `json:"mlType" validate:"required,oneof=clustering regression classification"`
	Algorithm        string `json:"algorithm" validate:"required"`
	NumClusters      *int   `json:"numClusters,omitempty" validate:"omitempty,min=2,max=100"`
	PolynomialDegree *int   `json:"polynomialDegree,omitempty" validate:"omitempty,min=2,max=10"`
}

// DefaultConfig is the configuration shown when Configure is first entered.
func DefaultConfig() MLConfiguration {
	return SwitchFamily(MLConfiguration{}, FamilyClustering)
}

// Clone returns a copy that shares no pointers with c.
func (c MLConfiguration) Clone() MLConfiguration {
	out := c
	out.NumClusters = clonePtr(c.NumClusters)
	out.PolynomialDegree = clonePtr(c.PolynomialDegree)
	return out
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// AlgorithmOption and FamilyOption describe what the Configure stage offers.
// Unavailable entries are listed but rejected by validation.
type AlgorithmOption struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type FamilyOption struct {
	Value      Family            `json:"value"`
	Label      string            `json:"label"`
	Available  bool              `json:"available"`
	Default    string            `json:"defaultAlgorithm,omitempty"`
	Algorithms []AlgorithmOption `json:"algorithms"`
}

var catalog = []FamilyOption{
	{
		Value: FamilyClustering, Label: "Clustering", Available: true, Default: AlgorithmKMeans,
		Algorithms: []AlgorithmOption{
			{Value: AlgorithmKMeans, Label: "K-means", Available: true},
			{Value: AlgorithmDBSCAN, Label: "DBSCAN (Coming Soon)"},
		},
	},
	{
		Value: FamilyClassification, Label: "Classification (Coming Soon)",
		Algorithms: []AlgorithmOption{},
	},
	{
		Value: FamilyRegression, Label: "Regression", Available: true, Default: AlgorithmLinear,
		Algorithms: []AlgorithmOption{
			{Value: AlgorithmLinear, Label: "Linear Regression", Available: true},
			{Value: AlgorithmPolynomial, Label: "Polynomial Regression", Available: true},
		},
	},
}

// Catalog returns a copy of the families and algorithms on offer.
func Catalog() []FamilyOption {
	out := make([]FamilyOption, len(catalog))
	for i, f := range catalog {
		out[i] = f
		out[i].Algorithms = append([]AlgorithmOption{}, f.Algorithms...)
	}
	return out
}

func familyOption(kind Family) (FamilyOption, bool) {
	for _, f := range catalog {
		if f.Value == kind {
			return f, true
		}
	}
	return FamilyOption{}, false
}

// SwitchFamily moves cfg to another family. The algorithm resets to the
// family default and parameters that belong to the old family are dropped.
// Switching to the current family returns cfg unchanged.
func SwitchFamily(cfg MLConfiguration, kind Family) MLConfiguration {
	if cfg.Kind == kind && cfg.Algorithm != "" {
		return cfg.Clone()
	}
	out := MLConfiguration{Kind: kind}
	if f, ok := familyOption(kind); ok {
		out.Algorithm = f.Default
	}
	if kind == FamilyClustering {
		n := DefaultNumClusters
		if cfg.Kind == FamilyClustering && cfg.NumClusters != nil {
			n = *cfg.NumClusters
		}
		out.NumClusters = &n
	}
	return out
}

// SelectAlgorithm changes the algorithm within the current family, adding
// or removing the polynomial degree as needed.
func SelectAlgorithm(cfg MLConfiguration, algorithm string) MLConfiguration {
	out := cfg.Clone()
	out.Algorithm = algorithm
	if algorithm == AlgorithmPolynomial {
		if out.PolynomialDegree == nil {
			d := DefaultPolynomialDegree
			out.PolynomialDegree = &d
		}
	} else {
		out.PolynomialDegree = nil
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Check reports the first reason cfg cannot be submitted, or "".
func (c MLConfiguration) Check() (field, reason string) {
	if f, ok := familyOption(c.Kind); ok && !f.Available {
		return "mlType", fmt.Sprintf("%s is not available yet", c.Kind)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return verrs[0].Field(), describeFieldError(verrs[0])
		}
		return "", err.Error()
	}
	fam, _ := familyOption(c.Kind)
	var alg *AlgorithmOption
	for i := range fam.Algorithms {
		if fam.Algorithms[i].Value == c.Algorithm {
			alg = &fam.Algorithms[i]
		}
	}
	if alg == nil {
		return "algorithm", fmt.Sprintf("algorithm %q does not belong to %s", c.Algorithm, c.Kind)
	}
	if !alg.Available {
		return "algorithm", fmt.Sprintf("algorithm %q is not available yet", c.Algorithm)
	}
	switch c.Kind {
	case FamilyClustering:
		if c.NumClusters == nil {
			return "numClusters", "number of clusters is required"
		}
		if c.PolynomialDegree != nil {
			return "polynomialDegree", "polynomial degree does not apply to clustering"
		}
	case FamilyRegression:
		if c.NumClusters != nil {
			return "numClusters", "number of clusters does not apply to regression"
		}
		if c.Algorithm == AlgorithmPolynomial && c.PolynomialDegree == nil {
			return "polynomialDegree", "polynomial degree is required"
		}
		if c.Algorithm != AlgorithmPolynomial && c.PolynomialDegree != nil {
			return "polynomialDegree", "polynomial degree only applies to polynomial regression"
		}
	}
	return "", ""
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min", "max":
		switch fe.Field() {
		case "numClusters":
			return "number of clusters must be between 2 and 100"
		case "polynomialDegree":
			return "polynomial degree must be between 2 and 10"
		}
		return fmt.Sprintf("%s is out of range", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
