package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
	"github.com/ajitpratap0/prototrain/pkg/metrics"
)

// DefaultEnvPrefix is the prefix of environment variables that override keys
// when WithEnvOverrides is given an empty prefix.
const DefaultEnvPrefix = "PROTOTRAIN"

const tracerName = "github.com/ajitpratap0/prototrain/pkg/config"

// UnknownKeyPolicy decides what happens to keys that are not part of the schema.
type UnknownKeyPolicy int

const (
	// UnknownKeysReject reports every unknown key as an UnknownKeyError
	UnknownKeysReject UnknownKeyPolicy = iota
	// UnknownKeysWarn logs unknown keys at warn level and ignores them
	UnknownKeysWarn
)

func (p UnknownKeyPolicy) String() string {
	switch p {
	case UnknownKeysReject:
		return "reject"
	case UnknownKeysWarn:
		return "warn"
	default:
		return "unknown"
	}
}

type loadOptions struct {
	unknownKeys UnknownKeyPolicy
	logger      *zap.Logger
	envPrefix   string
	metrics     *metrics.LoaderMetrics
}

// LoadOption configures Load and LoadFile.
type LoadOption func(*loadOptions)

// WithUnknownKeys sets the unknown key policy. The default is UnknownKeysReject.
func WithUnknownKeys(p UnknownKeyPolicy) LoadOption {
	return func(o *loadOptions) { o.unknownKeys = p }
}

// WithLogger sets the logger used for warnings and load summaries.
func WithLogger(l *zap.Logger) LoadOption {
	return func(o *loadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEnvOverrides lets environment variables named <PREFIX>_<KEY> override
// document values, e.g. PROTOTRAIN_EPOCHS=50.
func WithEnvOverrides(prefix string) LoadOption {
	return func(o *loadOptions) {
		if prefix == "" {
			prefix = DefaultEnvPrefix
		}
		o.envPrefix = prefix
	}
}

// WithMetrics records load outcomes in m.
func WithMetrics(m *metrics.LoaderMetrics) LoadOption {
	return func(o *loadOptions) { o.metrics = m }
}

func newLoadOptions(opts []LoadOption) *loadOptions {
	o := &loadOptions{
		unknownKeys: UnknownKeysReject,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load parses a parameter file and returns the validated configuration.
//
// Loading is all-or-nothing. A document that is not a YAML mapping fails with
// a single ErrorTypeParse error. Otherwise every type, range, cross-field and
// unknown key problem is collected and returned together as a
// *configerrors.List. Paths are not checked for existence.
//
// ${VAR} references in the document are replaced with environment values
// before parsing.
func Load(data []byte, opts ...LoadOption) (*ExperimentConfig, error) {
	o := newLoadOptions(opts)
	start := time.Now()
	cfg, err := load(data, o)
	o.metrics.Observe(err, time.Since(start))
	return cfg, err
}

// LoadFile reads path and loads it with Load.
// Read failures are reported as ErrorTypeFile.
func LoadFile(ctx context.Context, path string, opts ...LoadOption) (*ExperimentConfig, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "config.LoadFile",
		trace.WithAttributes(attribute.String("config.path", path)))
	defer span.End()

	cfg, err := loadFile(ctx, path, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "configuration rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("config.model_type", cfg.ModelType().String()),
		attribute.Int("config.epochs", cfg.Epochs()),
	)
	return cfg, nil
}

func loadFile(ctx context.Context, path string, opts []LoadOption) (*ExperimentConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, configerrors.Wrap(err, configerrors.ErrorTypeFile, "failed to read config file").
			WithDetail("path", path)
	}
	return Load(data, opts...)
}

func load(data []byte, o *loadOptions) (*ExperimentConfig, error) {
	content := substituteEnvVars(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
		v.AutomaticEnv()
	}
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, configerrors.NewParseError(err)
	}
	if err := checkKeyCase(content); err != nil {
		return nil, configerrors.NewParseError(err)
	}

	d := newDecoder()
	for _, f := range schema {
		lk := strings.ToLower(f.key)
		if !v.IsSet(lk) {
			if f.required {
				d.typeError(f.key, configerrors.Missing, f.expected)
				continue
			}
			f.decode(d, f.key, f.def)
			continue
		}
		f.decode(d, f.key, v.Get(lk))
	}

	settings := v.AllSettings()
	var unknown []string
	for k := range settings {
		if _, ok := lookupKey(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		switch o.unknownKeys {
		case UnknownKeysWarn:
			o.logger.Warn("ignoring unknown configuration key",
				zap.String("key", k),
				zap.Any("value", settings[k]))
		case UnknownKeysReject:
			d.errs = append(d.errs, configerrors.NewUnknownKeyError(k, settings[k]))
		}
	}

	var errs error
	for _, e := range d.errs {
		errs = multierr.Append(errs, e)
	}
	for _, e := range newValidator(d.s, d.bad).run() {
		errs = multierr.Append(errs, e)
	}
	if list := configerrors.Collect(errs); list != nil {
		o.logger.Debug("experiment configuration rejected",
			zap.Int("errors", list.Len()),
			zap.Strings("fields", list.Fields()))
		return nil, list
	}

	cfg := &ExperimentConfig{s: d.s.clone()}
	o.logger.Debug("experiment configuration loaded",
		zap.String("dataset", cfg.s.Dataset.Dataset.String()),
		zap.String("model_type", cfg.s.Model.ModelType.String()),
		zap.String("backbone", cfg.s.Model.Backbone.String()),
		zap.Int("epochs", cfg.s.Training.Epochs))
	return cfg, nil
}

// checkKeyCase rejects top-level keys that differ only in case. Keys match
// case-insensitively, so viper would keep one of them and drop the other.
func checkKeyCase(content string) error {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(content), &root); err != nil {
		return err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil
	}

	mapping := root.Content[0]
	seen := make(map[string]*yaml.Node, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		lk := strings.ToLower(key.Value)
		if prev, ok := seen[lk]; ok {
			return fmt.Errorf("line %d: mapping key %q already defined as %q at line %d",
				key.Line, key.Value, prev.Value, prev.Line)
		}
		seen[lk] = key
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
