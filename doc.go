// Package prototrain provides the experiment configuration layer for training
// and evaluating prototype-based image classifiers (ProtoTree and ProtoPNet)
// on fine-grained datasets such as CUB-200-2011 and Stanford Cars.
//
// A run is described by one flat YAML parameter file. prototrain loads it,
// coerces every value strictly, checks every range and every relation between
// fields, and hands the training, evaluation and explanation stages a single
// immutable configuration. A file with problems is rejected as a whole, with
// all of its problems listed.
//
// # Packages
//
//   - pkg/config: loading, validation, serialization and the derived training schedule
//   - pkg/configerrors: structured, aggregated configuration errors
//   - pkg/logger: zap-based structured logging
//   - pkg/metrics: Prometheus counters for load outcomes
//   - pkg/observability: OpenTelemetry tracing setup
//   - pkg/testutil: shared test fixtures
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/prototrain/pkg/config"
//	    "github.com/ajitpratap0/prototrain/pkg/logger"
//	)
//
//	cfg, err := config.LoadFile(ctx, "params/cub_prototree.yml",
//	    config.WithLogger(logger.Get()))
//	if err != nil {
//	    return err
//	}
//
//	schedule := cfg.Schedule()
//	for epoch := 0; epoch < cfg.Epochs(); epoch++ {
//	    frozen := schedule.BackboneFrozen(epoch)
//	    lr := schedule.LearningRate(config.GroupMain, epoch)
//	    ...
//	}
//
// # Command Line
//
//	prototrain validate params/*.yml
//	prototrain show -o json params/cub_prototree.yml
//	prototrain plan params/cub_prototree.yml
//	prototrain keys
//
// Global flags select the unknown key policy (--unknown-keys reject|warn),
// environment overrides (--env-overrides, --env-prefix), logging
// (--log-level, --log-format), and diagnostics (--metrics, --trace).
// A .env file in the working directory is loaded before the command runs.
package prototrain
