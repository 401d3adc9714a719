package config

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
	"github.com/ajitpratap0/prototrain/pkg/metrics"
	"github.com/ajitpratap0/prototrain/pkg/testutil"
)

func loadExample(t *testing.T, values map[string]interface{}, opts ...LoadOption) (*ExperimentConfig, error) {
	t.Helper()
	doc := testutil.ExampleConfig
	if len(values) > 0 {
		doc = testutil.WithValues(t, doc, values)
	}
	return Load([]byte(doc), append([]LoadOption{WithLogger(testutil.TestLogger(t))}, opts...)...)
}

func requireList(t *testing.T, err error) *configerrors.List {
	t.Helper()
	require.Error(t, err)
	var list *configerrors.List
	require.True(t, errors.As(err, &list), "expected *configerrors.List, got %T: %v", err, err)
	return list
}

func TestLoad_Example(t *testing.T) {
	cfg, err := loadExample(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "data/CUB_200_2011", cfg.Paths().CUBDir)
	assert.Equal(t, "runs/prototree_cub", cfg.Paths().OutputDir)
	assert.Equal(t, DatasetCUB, cfg.Dataset().Dataset)
	assert.Equal(t, ImageSize{Height: 224, Width: 224}, cfg.Dataset().ImgSize)
	assert.Equal(t, BackboneResNet50INat, cfg.Model().Backbone)
	assert.Equal(t, ModelTypeProtoTree, cfg.ModelType())
	assert.Equal(t, 1, cfg.Prototype().W1)
	assert.Equal(t, 1, cfg.Prototype().H1)
	assert.Equal(t, 256, cfg.Prototype().NumFeatures)
	assert.Equal(t, 9, cfg.Tree().Depth)

	training := cfg.Training()
	assert.Equal(t, 64, training.BatchSize)
	assert.Equal(t, 100, cfg.Epochs())
	assert.Equal(t, 30, training.FreezeEpochs)
	assert.Equal(t, OptimizerAdamW, training.Optimizer)
	assert.InDelta(t, 0.001, training.LRMain, 1e-12)
	assert.InDelta(t, 0.00001, training.LRBackbone, 1e-12)
	assert.Equal(t, []int{60, 70, 80, 90}, training.Milestones)
	assert.False(t, training.ProjectFromEpoch.IsSet())
	assert.Equal(t, 5, training.EveryNEpochs)
	assert.InDelta(t, 11.0, training.LeafPruningMultiplier, 1e-12)

	assert.False(t, cfg.Test().ModelCheckpoint.IsSet())
	assert.False(t, cfg.Test().PrototypesInfoPath.IsSet())
	assert.Equal(t,
		[]ImgModification{ModHue, ModShape, ModTexture, ModContrast, ModSaturation},
		cfg.Explanation().ImgModifications)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadExample(t, map[string]interface{}{
		KeyFreezeEpochs:          nil,
		KeyMomentum:              nil,
		KeyGamma:                 nil,
		KeyMilestones:            nil,
		KeyProjectFromEpoch:      nil,
		KeyEveryNEpochs:          nil,
		KeyModelCheckpoint:       nil,
		KeyImgModifications:      nil,
		KeyExplain:               nil,
		KeyDisableCUDA:           nil,
		KeySaveTopK:              nil,
		KeyLeafPruningMultiplier: nil,
	})
	require.NoError(t, err)

	training := cfg.Training()
	assert.Equal(t, 0, training.FreezeEpochs)
	assert.Zero(t, training.Momentum)
	assert.InDelta(t, 0.5, training.Gamma, 1e-12)
	assert.Empty(t, training.Milestones)
	assert.False(t, training.ProjectFromEpoch.IsSet())
	assert.Equal(t, 1, training.EveryNEpochs)
	assert.Equal(t, 1, training.SaveTopK)
	assert.InDelta(t, 1.0, training.LeafPruningMultiplier, 1e-12)
	assert.False(t, cfg.Test().ModelCheckpoint.IsSet())
	assert.Empty(t, cfg.Explanation().ImgModifications)

	assert.Equal(t, 10, cfg.Prototype().PrototypesPerClass)
	assert.InDelta(t, 0.5, cfg.Tree().LeafOptEWMAAlpha, 1e-12)
	assert.Equal(t, SamplingDistributed, cfg.Tree().SamplingStrategy)
}

func TestLoad_CrossFieldErrors(t *testing.T) {
	t.Run("freeze_epochs beyond epochs", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyFreezeEpochs: 150})
		list := requireList(t, err)

		require.Equal(t, 1, list.Len())
		e := list.Errors()[0]
		assert.Equal(t, configerrors.ErrorTypeCrossField, e.Type)
		assert.Equal(t, []string{KeyFreezeEpochs, KeyEpochs}, e.Fields)
		assert.Equal(t, "cross_field: freeze_epochs=150, epochs=100: expected freeze_epochs <= epochs", e.Error())
	})

	t.Run("freeze_epochs equal to epochs", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyFreezeEpochs: 100})
		assert.NoError(t, err)
	})

	t.Run("milestones not increasing", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyMilestones: []int{60, 50}})
		list := requireList(t, err)

		require.Equal(t, 1, list.Len())
		assert.Equal(t, configerrors.ErrorTypeCrossField, list.Errors()[0].Type)
		assert.Equal(t, KeyMilestones, list.Errors()[0].Field())
	})

	t.Run("duplicate milestones", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyMilestones: []int{60, 60}})
		list := requireList(t, err)
		assert.Len(t, list.ByType(configerrors.ErrorTypeCrossField), 1)
	})

	t.Run("milestone at epochs", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyMilestones: []int{60, 100}})
		list := requireList(t, err)

		require.Equal(t, 1, list.Len())
		assert.Equal(t, []string{KeyMilestones, KeyEpochs}, list.Errors()[0].Fields)
	})

	t.Run("project_from_epoch at epochs", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyProjectFromEpoch: 100})
		list := requireList(t, err)

		require.Equal(t, 1, list.Len())
		assert.Equal(t, []string{KeyProjectFromEpoch, KeyEpochs}, list.Errors()[0].Fields)
	})

	t.Run("project_from_epoch within epochs", func(t *testing.T) {
		cfg, err := loadExample(t, map[string]interface{}{KeyProjectFromEpoch: 99})
		require.NoError(t, err)
		from, ok := cfg.Training().ProjectFromEpoch.Get()
		assert.True(t, ok)
		assert.Equal(t, 99, from)
	})

	t.Run("zero gamma with milestones", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyGamma: 0})
		list := requireList(t, err)
		assert.Equal(t, []string{KeyGamma, KeyMilestones}, list.Errors()[0].Fields)
	})

	t.Run("zero gamma without milestones", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyGamma: 0, KeyMilestones: []int{}})
		assert.NoError(t, err)
	})

	t.Run("SGD momentum of one", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyOptimizer: "SGD", KeyMomentum: 1.0})
		list := requireList(t, err)

		require.Equal(t, 1, list.Len())
		assert.Equal(t, []string{KeyMomentum, KeyOptimizer}, list.Errors()[0].Fields)
	})
}

func TestLoad_RangeErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"zero depth", KeyDepth, 0},
		{"deep tree", KeyDepth, 31},
		{"zero batch size", KeyBatchSize, 0},
		{"negative epochs", KeyEpochs, -5},
		{"negative freeze", KeyFreezeEpochs, -1},
		{"zero features", KeyNumFeatures, 0},
		{"zero prototype width", KeyW1, 0},
		{"negative lr", KeyLRMain, -0.1},
		{"zero lr", KeyLRBackbone, 0},
		{"negative decay", KeyWeightDecay, -1e-4},
		{"negative milestone", KeyMilestones, []int{-1, 60}},
		{"project before start", KeyProjectFromEpoch, -2},
		{"zero checkpoint interval", KeyEveryNEpochs, 0},
		{"unknown dataset", KeyDataset, "ImageNet"},
		{"unknown backbone", KeyBackbone, "resnet999"},
		{"unknown model type", KeyModelType, "protoforest"},
		{"unknown optimizer", KeyOptimizer, "RMSprop"},
		{"unknown sampling strategy", KeySamplingStrategy, "random"},
		{"unknown modification", KeyImgModifications, []string{"hue", "brightness"}},
		{"repeated modification", KeyImgModifications, []string{"hue", "hue"}},
		{"alpha above one", KeyLeafOptEWMAAlpha, 1.5},
		{"empty path", KeyTrainDir, ""},
		{"flat image", KeyImgSize, []int{224, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadExample(t, map[string]interface{}{tt.key: tt.value})
			list := requireList(t, err)

			require.Equal(t, 1, list.Len(), list.Error())
			e := list.Errors()[0]
			assert.Equal(t, configerrors.ErrorTypeRange, e.Type)
			assert.Equal(t, tt.key, e.Field())
		})
	}
}

func TestLoad_UnknownModificationNamed(t *testing.T) {
	_, err := loadExample(t, map[string]interface{}{
		KeyImgModifications: []string{"hue", "brightness", "shape"},
	})
	list := requireList(t, err)

	require.Equal(t, 1, list.Len())
	e := list.Errors()[0]
	assert.Equal(t, KeyImgModifications, e.Field())
	assert.Equal(t, "brightness", e.Value)
	assert.Contains(t, e.Error(), `got "brightness", expected one of [hue, saturation, texture, color, contrast, shape]`)
}

func TestLoad_TypeErrors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		expected string
	}{
		{"text batch size", KeyBatchSize, "abc", "integer"},
		{"fractional epochs", KeyEpochs, 10.5, "integer"},
		{"boolean depth", KeyDepth, true, "integer"},
		{"text lr", KeyLRMain, "fast", "number"},
		{"numeric flag", KeyExplain, 7, "boolean"},
		{"mapping path", KeyOutputDir, map[string]string{"a": "b"}, "path"},
		{"numeric dataset", KeyDataset, 200, "string"},
		{"three dimensional image", KeyImgSize, []int{224, 224, 3}, "[height, width]"},
		{"text milestones", KeyMilestones, []string{"sixty"}, "list of integers"},
		{"numeric modification", KeyImgModifications, []int{1}, "image modification name"},
		{"infinite lr", KeyLRMain, math.Inf(1), "number"},
		{"infinite gamma", KeyGamma, math.Inf(1), "number"},
		{"negative infinite weight decay", KeyWeightDecay, math.Inf(-1), "number"},
		{"epochs beyond int", KeyEpochs, uint64(math.MaxUint64), "integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadExample(t, map[string]interface{}{tt.key: tt.value})
			list := requireList(t, err)

			require.Equal(t, 1, list.Len(), list.Error())
			e := list.Errors()[0]
			assert.Equal(t, configerrors.ErrorTypeType, e.Type)
			assert.Equal(t, tt.key, e.Field())
			assert.Equal(t, tt.expected, e.Expected)
		})
	}

	t.Run("batch size message", func(t *testing.T) {
		_, err := loadExample(t, map[string]interface{}{KeyBatchSize: "abc"})
		assert.EqualError(t, err, `type: batch_size: got "abc", expected integer`)
	})
}

func TestLoad_Coercion(t *testing.T) {
	cfg, err := loadExample(t, map[string]interface{}{
		KeyBatchSize:  "32",
		KeyEpochs:     50.0,
		KeyLRMain:     "0.01",
		KeyExplain:    "true",
		KeyImgSize:    "256x192",
		KeyMilestones: "10, 20",
		KeyOptimizer:  "sgd",
		KeyBackbone:   "ResNet18",
	})
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Training().BatchSize)
	assert.Equal(t, 50, cfg.Epochs())
	assert.InDelta(t, 0.01, cfg.Training().LRMain, 1e-12)
	assert.True(t, cfg.Prototype().Explain)
	assert.Equal(t, ImageSize{Height: 256, Width: 192}, cfg.Dataset().ImgSize)
	assert.Equal(t, []int{10, 20}, cfg.Training().Milestones)
	assert.Equal(t, OptimizerSGD, cfg.Training().Optimizer)
	assert.Equal(t, BackboneResNet18, cfg.Model().Backbone)
}

func TestLoad_MissingKeys(t *testing.T) {
	_, err := loadExample(t, map[string]interface{}{KeyDepth: nil, KeyCUBDir: nil})
	list := requireList(t, err)

	require.Equal(t, 2, list.Len())
	assert.Equal(t, []string{KeyCUBDir, KeyDepth}, list.Fields())
	for _, e := range list.Errors() {
		assert.Equal(t, configerrors.ErrorTypeType, e.Type)
		assert.Equal(t, configerrors.Missing, e.Value)
	}
	assert.Contains(t, err.Error(), "depth: got <missing>, expected integer")
}

func TestLoad_AggregatesErrors(t *testing.T) {
	_, err := loadExample(t, map[string]interface{}{
		KeyBatchSize:    "abc",
		KeyDepth:        0,
		KeyFreezeEpochs: 150,
		"learning_rate": 0.1,
	})
	list := requireList(t, err)

	assert.Equal(t, 4, list.Len())
	assert.Len(t, list.ByType(configerrors.ErrorTypeType), 1)
	assert.Len(t, list.ByType(configerrors.ErrorTypeRange), 1)
	assert.Len(t, list.ByType(configerrors.ErrorTypeCrossField), 1)
	assert.Len(t, list.ByType(configerrors.ErrorTypeUnknownKey), 1)
	assert.Contains(t, err.Error(), "4 configuration errors")
}

func TestLoad_BadValueReportedOnce(t *testing.T) {
	// epochs is unusable, so relations involving it are not checked
	_, err := loadExample(t, map[string]interface{}{KeyEpochs: "many", KeyFreezeEpochs: 150})
	list := requireList(t, err)

	require.Equal(t, 1, list.Len())
	assert.Equal(t, KeyEpochs, list.Errors()[0].Field())
}

func TestLoad_ParseError(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unterminated flow sequence", "epochs: [1, 2\n"},
		{"top-level sequence", "- epochs\n- depth\n"},
		{"duplicate key", "epochs: 100\nepochs: 200\n"},
		{"duplicate key in another case", "W1: 1\nw1: 7\n"},
		{"scalar document", "just a string\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, configerrors.IsType(err, configerrors.ErrorTypeParse))

			var list *configerrors.List
			assert.False(t, errors.As(err, &list))
		})
	}
}

func TestLoad_KeysDifferingInCase(t *testing.T) {
	doc := testutil.WithValues(t, testutil.ExampleConfig, map[string]interface{}{"w1": 7})

	cfg, err := Load([]byte(doc))
	assert.Nil(t, cfg)
	require.True(t, configerrors.IsType(err, configerrors.ErrorTypeParse), "%v", err)
	assert.Contains(t, err.Error(), `mapping key "w1" already defined as "W1"`)
}

func TestLoad_UnknownKeys(t *testing.T) {
	values := map[string]interface{}{"learning_rate": 0.1, "num_gpus": 4}

	t.Run("rejected by default", func(t *testing.T) {
		_, err := loadExample(t, values)
		list := requireList(t, err)

		require.Equal(t, 2, list.Len())
		assert.Equal(t, []string{"learning_rate", "num_gpus"}, list.Fields())
		assert.True(t, configerrors.IsType(err, configerrors.ErrorTypeUnknownKey))
	})

	t.Run("warned and ignored", func(t *testing.T) {
		logger, logs := testutil.ObservedLogger(zapcore.WarnLevel)
		cfg, err := Load([]byte(testutil.WithValues(t, testutil.ExampleConfig, values)),
			WithUnknownKeys(UnknownKeysWarn), WithLogger(logger))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		entries := logs.FilterMessage("ignoring unknown configuration key").All()
		require.Len(t, entries, 2)
		assert.Equal(t, "learning_rate", entries[0].ContextMap()["key"])
		assert.Equal(t, "num_gpus", entries[1].ContextMap()["key"])
	})

	t.Run("keys match case-insensitively", func(t *testing.T) {
		doc := testutil.WithValues(t, testutil.ExampleConfig, map[string]interface{}{
			KeyEpochs: nil,
			"EPOCHS":  100,
		})
		_, err := Load([]byte(doc))
		assert.NoError(t, err)
	})
}

func TestLoad_EnvironmentSubstitution(t *testing.T) {
	t.Setenv("PROTOTRAIN_TEST_RUN_DIR", "/scratch/run-7")
	cfg, err := loadExample(t, map[string]interface{}{KeyOutputDir: "${PROTOTRAIN_TEST_RUN_DIR}/out"})
	require.NoError(t, err)
	assert.Equal(t, "/scratch/run-7/out", cfg.Paths().OutputDir)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PROTOTRAIN_EPOCHS", "120")
	t.Setenv("PROTOTRAIN_MILESTONES", "50,100")
	t.Setenv("PROTOTRAIN_OPTIMIZER", "SGD")

	t.Run("ignored without the option", func(t *testing.T) {
		cfg, err := loadExample(t, nil)
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Epochs())
	})

	t.Run("applied with the option", func(t *testing.T) {
		cfg, err := loadExample(t, nil, WithEnvOverrides(""))
		require.NoError(t, err)
		assert.Equal(t, 120, cfg.Epochs())
		assert.Equal(t, []int{50, 100}, cfg.Training().Milestones)
		assert.Equal(t, OptimizerSGD, cfg.Training().Optimizer)
	})

	t.Run("overrides are validated", func(t *testing.T) {
		t.Setenv("PROTOTRAIN_EPOCHS", "90")
		_, err := loadExample(t, nil, WithEnvOverrides(DefaultEnvPrefix))
		list := requireList(t, err)
		assert.Equal(t, []string{KeyEpochs, KeyMilestones}, list.Fields())
	})
}

func TestLoad_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLoaderMetrics(reg)

	_, err := loadExample(t, nil, WithMetrics(m))
	require.NoError(t, err)
	_, err = loadExample(t, map[string]interface{}{KeyDepth: 0, KeyEpochs: 0}, WithMetrics(m))
	require.Error(t, err)

	count, err := promtest.GatherAndCount(reg, "prototrain_config_loads_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = promtest.GatherAndCount(reg, "prototrain_config_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type LoadFileSuite struct {
	testutil.ConfigFileSuite
}

func TestLoadFileSuite(t *testing.T) {
	suite.Run(t, new(LoadFileSuite))
}

func (s *LoadFileSuite) TestLoadsFile() {
	path := s.CreateConfigFile("params.yml", testutil.ExampleConfig)

	cfg, err := LoadFile(s.Context(), path)
	s.Require().NoError(err)
	s.Equal(ModelTypeProtoTree, cfg.ModelType())
	s.Equal(100, cfg.Epochs())
}

func (s *LoadFileSuite) TestLoadsTestdata() {
	cfg, err := LoadFile(s.Context(), filepath.Join("testdata", "config.yml"))
	s.Require().NoError(err)
	s.Equal(9, cfg.Tree().Depth)
}

func (s *LoadFileSuite) TestMissingFile() {
	_, err := LoadFile(s.Context(), filepath.Join(s.TempDir(), "absent.yml"))
	s.Require().Error(err)
	s.True(configerrors.IsType(err, configerrors.ErrorTypeFile))
	s.True(errors.Is(err, fs.ErrNotExist))
}

func (s *LoadFileSuite) TestCancelledContext() {
	path := s.CreateConfigFile("params.yml", testutil.ExampleConfig)
	ctx, cancel := context.WithCancel(s.Context())
	cancel()

	_, err := LoadFile(ctx, path)
	s.ErrorIs(err, context.Canceled)
}

func (s *LoadFileSuite) TestRejectedFile() {
	doc := testutil.WithValues(s.T(), testutil.ExampleConfig, map[string]interface{}{KeyFreezeEpochs: 150})
	path := s.CreateConfigFile("params.yml", doc)

	cfg, err := LoadFile(s.Context(), path)
	s.Nil(cfg)
	s.True(configerrors.IsType(err, configerrors.ErrorTypeCrossField))
}

func (s *LoadFileSuite) TestSaveThenLoad() {
	cfg, err := Load([]byte(testutil.ExampleConfig))
	s.Require().NoError(err)

	path := filepath.Join(s.TempDir(), "saved.yml")
	s.Require().NoError(cfg.Save(path))

	loaded, err := LoadFile(s.Context(), path)
	s.Require().NoError(err)
	s.True(cfg.Equal(loaded))
}

func TestLoadFile_Span(t *testing.T) {
	previous := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	good := testutil.WriteConfig(t, "good.yml", testutil.ExampleConfig)
	_, err := LoadFile(context.Background(), good)
	require.NoError(t, err)

	_, err = LoadFile(context.Background(), good+".missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "config.LoadFile", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("config.model_type", "prototree"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("config.epochs", 100))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("PROTOTRAIN_TEST_A", "alpha")

	assert.Equal(t, "x: alpha/b", substituteEnvVars("x: ${PROTOTRAIN_TEST_A}/b"))
	assert.Equal(t, "x: ", substituteEnvVars("x: ${PROTOTRAIN_TEST_UNSET_VAR}"))
	assert.Equal(t, "x: ${open", substituteEnvVars("x: ${open"))
	assert.Equal(t, "alpha alpha", substituteEnvVars("${PROTOTRAIN_TEST_A} ${PROTOTRAIN_TEST_A}"))
}
