package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAdvance(t *testing.T) {
	empty := NewState()
	ok, reason := CanAdvance(empty, StageUpload)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	s := ApplyUpload(empty, csvUpload("Name", "Age", "City"))
	ok, _ = CanAdvance(s, StageUpload)
	assert.True(t, ok)

	ok, reason = CanAdvance(s, StageSelectColumns)
	assert.False(t, ok)
	assert.Equal(t, "select at least one column", reason)

	ok, reason = CanAdvance(WithSelection(s, []string{"Name", "Zip"}), StageSelectColumns)
	assert.False(t, ok)
	assert.Equal(t, "unknown column(s): Zip", reason)

	ok, _ = CanAdvance(WithSelection(s, []string{"City"}), StageSelectColumns)
	assert.True(t, ok)

	ok, reason = CanAdvance(WithSelection(s, []string{"  "}), StageSelectColumns)
	assert.False(t, ok)
	assert.Contains(t, reason, "blank")

	ok, _ = CanAdvance(configuredState(), StageConfigure)
	assert.True(t, ok)

	ok, _ = CanAdvance(configuredState(), StageViewResults)
	assert.False(t, ok)
}

func TestCanAdvanceDeferredHeadersAcceptsAnySelection(t *testing.T) {
	s := StageState{Stage: StageSelectColumns, SourceFileName: "frame.parquet", Headers: []string{}, SelectedColumns: []string{"anything"}}
	ok, reason := CanAdvance(s, StageSelectColumns)
	assert.True(t, ok, reason)
}

func TestConfigurationCheck(t *testing.T) {
	cases := []struct {
		name   string
		cfg    MLConfiguration
		field  string
		reason string
	}{
		{"valid clustering", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmKMeans, NumClusters: intPtr(2)}, "", ""},
		{"valid upper bound", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmKMeans, NumClusters: intPtr(100)}, "", ""},
		{"too few clusters", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmKMeans, NumClusters: intPtr(1)}, "numClusters", "number of clusters must be between 2 and 100"},
		{"too many clusters", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmKMeans, NumClusters: intPtr(101)}, "numClusters", "number of clusters must be between 2 and 100"},
		{"missing clusters", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmKMeans}, "numClusters", "number of clusters is required"},
		{"dbscan unavailable", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmDBSCAN, NumClusters: intPtr(3)}, "algorithm", `algorithm "dbscan" is not available yet`},
		{"cross family algorithm", MLConfiguration{Kind: FamilyClustering, Algorithm: AlgorithmLinear, NumClusters: intPtr(3)}, "algorithm", `algorithm "linear" does not belong to clustering`},
		{"classification unavailable", MLConfiguration{Kind: FamilyClassification}, "mlType", "classification is not available yet"},
		{"unknown family", MLConfiguration{Kind: "forecast", Algorithm: "x"}, "mlType", "mlType must be one of: clustering regression classification"},
		{"regression with clusters", MLConfiguration{Kind: FamilyRegression, Algorithm: AlgorithmLinear, NumClusters: intPtr(3)}, "numClusters", "number of clusters does not apply to regression"},
		{"polynomial without degree", MLConfiguration{Kind: FamilyRegression, Algorithm: AlgorithmPolynomial}, "polynomialDegree", "polynomial degree is required"},
		{"degree out of range", MLConfiguration{Kind: FamilyRegression, Algorithm: AlgorithmPolynomial, PolynomialDegree: intPtr(11)}, "polynomialDegree", "polynomial degree must be between 2 and 10"},
		{"linear with degree", MLConfiguration{Kind: FamilyRegression, Algorithm: AlgorithmLinear, PolynomialDegree: intPtr(3)}, "polynomialDegree", "polynomial degree only applies to polynomial regression"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field, reason := tc.cfg.Check()
			assert.Equal(t, tc.field, field)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestCatalogIsACopy(t *testing.T) {
	c := Catalog()
	c[0].Algorithms[0].Available = false
	assert.True(t, Catalog()[0].Algorithms[0].Available)
}
