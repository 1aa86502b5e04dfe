package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KaramelBytes/stagewise/internal/wizard"
)

func intPtr(v int) *int { return &v }

func sampleState() wizard.StageState {
	cfg := wizard.MLConfiguration{Kind: wizard.FamilyClustering, Algorithm: wizard.AlgorithmKMeans, NumClusters: intPtr(5)}
	return wizard.StageState{
		Stage:           wizard.StageConfigure,
		SourceFileName:  "people.csv",
		Headers:         []string{"Name", "Age", "City"},
		SelectedColumns: []string{"Name", "City"},
		Config:          &cfg,
	}
}

func TestEncodeKeysPerStage(t *testing.T) {
	s := sampleState()

	p := Encode(s, wizard.StageSelectColumns)
	assert.Equal(t, Payload{
		KeyHeaders:         `["Name","Age","City"]`,
		KeySelectedColumns: `["Name","City"]`,
	}, p)

	p = Encode(s, wizard.StageViewResults)
	assert.Equal(t, `["Name","Age","City"]`, p[KeyAllHeaders])
	assert.JSONEq(t, `{"mlType":"clustering","algorithm":"kmeans","selectedColumns":["Name","City"],"numClusters":5}`, p[KeyConfig])

	assert.Empty(t, Encode(s, wizard.StageUpload))
}

func TestEncodeRegressionOmitsClusterCount(t *testing.T) {
	s := sampleState()
	reg := wizard.SwitchFamily(*s.Config, wizard.FamilyRegression)
	s.Config = &reg
	p := Encode(s, wizard.StageViewResults)
	assert.JSONEq(t, `{"mlType":"regression","algorithm":"linear","selectedColumns":["Name","City"]}`, p[KeyConfig])
}

func TestRoundTripThroughEveryStage(t *testing.T) {
	s := sampleState()
	for _, st := range []wizard.Stage{wizard.StageSelectColumns, wizard.StageConfigure, wizard.StageViewResults} {
		got, diags := Decode(Encode(s, st), st)
		assert.Empty(t, diags, st.String())
		assert.Equal(t, st, got.Stage)
		assert.Equal(t, s.Headers, got.Headers, st.String())
		assert.Equal(t, s.SelectedColumns, got.SelectedColumns, st.String())
		if st != wizard.StageSelectColumns {
			require.NotNil(t, got.Config)
			assert.Equal(t, *s.Config, *got.Config)
		}
	}
}

func TestDecodeMalformedFallsBack(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		at   wizard.Stage
		key  string
	}{
		{"headers not json", Payload{KeyHeaders: "Name,Age"}, wizard.StageSelectColumns, KeyHeaders},
		{"headers object", Payload{KeyHeaders: `{"a":1}`}, wizard.StageSelectColumns, KeyHeaders},
		{"headers mixed types", Payload{KeyHeaders: `["Name",3]`}, wizard.StageSelectColumns, KeyHeaders},
		{"headers null element", Payload{KeyHeaders: `["Name",null]`}, wizard.StageSelectColumns, KeyHeaders},
		{"headers missing", Payload{}, wizard.StageSelectColumns, KeyHeaders},
		{"selection null", Payload{KeySelectedColumns: `null`, KeyAllHeaders: `[]`}, wizard.StageConfigure, KeySelectedColumns},
		{"config array", Payload{KeyConfig: `[1]`}, wizard.StageViewResults, KeyConfig},
		{"config wrong field type", Payload{KeyConfig: `{"mlType":"clustering","algorithm":"kmeans","numClusters":"five"}`}, wizard.StageViewResults, KeyConfig},
		{"config out of range", Payload{KeyConfig: `{"mlType":"clustering","algorithm":"kmeans","numClusters":500,"selectedColumns":["a"]}`}, wizard.StageViewResults, KeyConfig},
		{"config bad columns", Payload{KeyConfig: `{"mlType":"regression","algorithm":"linear","selectedColumns":[1]}`}, wizard.StageViewResults, KeyConfig},
		{"config missing", Payload{KeyAllHeaders: `["a"]`}, wizard.StageViewResults, KeyConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, diags := Decode(tc.p, tc.at)
			require.Len(t, diags, 1)
			assert.Equal(t, tc.key, diags[0].Key)
			assert.NotNil(t, s.Headers)
			assert.NotNil(t, s.SelectedColumns)
			assert.Equal(t, tc.at, s.Stage)
		})
	}
}

func TestDecodeConfigureDefaultsConfig(t *testing.T) {
	s, diags := Decode(Payload{KeySelectedColumns: `["a"]`, KeyAllHeaders: `["a","b"]`}, wizard.StageConfigure)
	assert.Empty(t, diags)
	require.NotNil(t, s.Config)
	assert.Equal(t, wizard.DefaultConfig(), *s.Config)
	ok, reason := wizard.CanAdvance(s, wizard.StageConfigure)
	assert.True(t, ok, reason)
}

func TestDecodeLoggedWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, diags := DecodeLogged(Payload{KeyHeaders: "oops"}, wizard.StageSelectColumns, zap.New(core))
	assert.Empty(t, s.Headers)
	assert.Len(t, diags, 1)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stage transport value ignored", entry.Message)
	assert.Equal(t, KeyHeaders, entry.ContextMap()["key"])
}
