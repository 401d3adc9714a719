package config

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
)

// maxDepth bounds the tree so that 2^depth fits in an int on every platform.
const maxDepth = 30

// Validate checks every field range and every cross-field relationship of the
// configuration. It returns nil or a *configerrors.List naming all violations.
func (c *ExperimentConfig) Validate() error {
	var errs error
	for _, e := range newValidator(&c.s, nil).run() {
		errs = multierr.Append(errs, e)
	}
	if list := configerrors.Collect(errs); list != nil {
		return list
	}
	return nil
}

// validator runs range checks first, then cross-field checks. A key that
// already failed (during decoding or a range check) is skipped by every later
// check so that one bad value produces one error.
type validator struct {
	s    *Sections
	bad  map[string]bool
	errs []*configerrors.Error
}

func newValidator(s *Sections, bad map[string]bool) *validator {
	if bad == nil {
		bad = make(map[string]bool)
	}
	return &validator{s: s, bad: bad}
}

func (v *validator) run() []*configerrors.Error {
	v.checkRanges()
	v.checkCrossFields()
	return v.errs
}

func (v *validator) ok(keys ...string) bool {
	for _, k := range keys {
		if v.bad[k] {
			return false
		}
	}
	return true
}

func (v *validator) rangeError(key string, value interface{}, expected string) {
	v.errs = append(v.errs, configerrors.NewRangeError(key, value, expected))
	v.bad[key] = true
}

func (v *validator) crossFieldError(expected string, values ...configerrors.FieldValue) {
	v.errs = append(v.errs, configerrors.NewCrossFieldError(expected, values...))
}

func (v *validator) positiveInt(key string, n int) {
	if v.ok(key) && n <= 0 {
		v.rangeError(key, n, "> 0")
	}
}

func (v *validator) nonNegativeFloat(key string, f float64) {
	if v.ok(key) && f < 0 {
		v.rangeError(key, f, ">= 0")
	}
}

func (v *validator) nonEmpty(key, path string) {
	if v.ok(key) && path == "" {
		v.rangeError(key, path, "non-empty path")
	}
}

func checkEnum[T ~string](v *validator, key string, value T, known []T) {
	if v.ok(key) && !slices.Contains(known, value) {
		v.rangeError(key, string(value), enumExpectation(known))
	}
}

func (v *validator) checkRanges() {
	s := v.s

	v.nonEmpty(KeyCUBDir, s.Paths.CUBDir)
	v.nonEmpty(KeyCUBImagesDir, s.Paths.CUBImagesDir)
	v.nonEmpty(KeyDatasetDir, s.Paths.DatasetDir)
	v.nonEmpty(KeyTrainDir, s.Paths.TrainDir)
	v.nonEmpty(KeyValDir, s.Paths.ValDir)
	v.nonEmpty(KeyTestDir, s.Paths.TestDir)
	v.nonEmpty(KeyOutputDir, s.Paths.OutputDir)

	checkEnum(v, KeyDataset, s.Dataset.Dataset, Datasets)
	if v.ok(KeyImgSize) && (s.Dataset.ImgSize.Height <= 0 || s.Dataset.ImgSize.Width <= 0) {
		v.rangeError(KeyImgSize, []int{s.Dataset.ImgSize.Height, s.Dataset.ImgSize.Width}, "height and width > 0")
	}

	checkEnum(v, KeyBackbone, s.Model.Backbone, Backbones)
	checkEnum(v, KeyModelType, s.Model.ModelType, ModelTypes)

	v.positiveInt(KeyW1, s.Prototype.W1)
	v.positiveInt(KeyH1, s.Prototype.H1)
	v.positiveInt(KeyNumFeatures, s.Prototype.NumFeatures)
	v.positiveInt(KeyPrototypesPerClass, s.Prototype.PrototypesPerClass)

	if v.ok(KeyDepth) && (s.Tree.Depth <= 0 || s.Tree.Depth > maxDepth) {
		v.rangeError(KeyDepth, s.Tree.Depth, fmt.Sprintf("> 0 and <= %d", maxDepth))
	}
	if v.ok(KeyLeafOptEWMAAlpha) && (s.Tree.LeafOptEWMAAlpha <= 0 || s.Tree.LeafOptEWMAAlpha > 1) {
		v.rangeError(KeyLeafOptEWMAAlpha, s.Tree.LeafOptEWMAAlpha, "> 0 and <= 1")
	}
	checkEnum(v, KeySamplingStrategy, s.Tree.SamplingStrategy, SamplingStrategies)

	t := s.Training
	v.positiveInt(KeyBatchSize, t.BatchSize)
	v.positiveInt(KeyEpochs, t.Epochs)
	if v.ok(KeyFreezeEpochs) && t.FreezeEpochs < 0 {
		v.rangeError(KeyFreezeEpochs, t.FreezeEpochs, ">= 0")
	}
	checkEnum(v, KeyOptimizer, t.Optimizer, Optimizers)

	v.nonNegativeFloat(KeyLRMain, t.LRMain)
	v.nonNegativeFloat(KeyLRBackbone, t.LRBackbone)
	if v.ok(KeyOptimizer) {
		// Every supported optimizer steps with a learning rate.
		if v.ok(KeyLRMain) && t.LRMain == 0 {
			v.rangeError(KeyLRMain, t.LRMain, fmt.Sprintf("> 0 for optimizer %s", t.Optimizer))
		}
		if v.ok(KeyLRBackbone) && t.LRBackbone == 0 {
			v.rangeError(KeyLRBackbone, t.LRBackbone, fmt.Sprintf("> 0 for optimizer %s", t.Optimizer))
		}
	}
	v.nonNegativeFloat(KeyMomentum, t.Momentum)
	v.nonNegativeFloat(KeyWeightDecay, t.WeightDecayMain)
	v.nonNegativeFloat(KeyWeightDecayBB, t.WeightDecayBackbone)
	v.nonNegativeFloat(KeyGamma, t.Gamma)

	if v.ok(KeyMilestones) {
		for _, m := range t.Milestones {
			if m < 0 {
				v.rangeError(KeyMilestones, m, "epoch index >= 0")
				break
			}
		}
	}

	if p, set := t.ProjectFromEpoch.Get(); set && v.ok(KeyProjectFromEpoch) && p < 0 {
		v.rangeError(KeyProjectFromEpoch, p, "-1 (disabled) or an epoch index >= 0")
	}

	v.positiveInt(KeyEveryNEpochs, t.EveryNEpochs)
	v.positiveInt(KeySaveTopK, t.SaveTopK)
	if v.ok(KeyLeafPruningMultiplier) && t.LeafPruningMultiplier <= 0 {
		v.rangeError(KeyLeafPruningMultiplier, t.LeafPruningMultiplier, "> 0")
	}

	if v.ok(KeyImgModifications) {
		seen := make(map[ImgModification]bool, len(s.Explanation.ImgModifications))
		for _, m := range s.Explanation.ImgModifications {
			switch {
			case !slices.Contains(ImgModifications, m):
				v.rangeError(KeyImgModifications, string(m), enumExpectation(ImgModifications))
			case seen[m]:
				v.rangeError(KeyImgModifications, string(m), "unique entries")
			}
			seen[m] = true
		}
	}
}

func (v *validator) checkCrossFields() {
	t := v.s.Training

	if v.ok(KeyFreezeEpochs, KeyEpochs) && t.FreezeEpochs > t.Epochs {
		v.crossFieldError("freeze_epochs <= epochs",
			configerrors.FieldValue{Field: KeyFreezeEpochs, Value: t.FreezeEpochs},
			configerrors.FieldValue{Field: KeyEpochs, Value: t.Epochs})
	}

	if p, set := t.ProjectFromEpoch.Get(); set && v.ok(KeyProjectFromEpoch, KeyEpochs) && p >= t.Epochs {
		v.crossFieldError("project_from_epoch == -1 or project_from_epoch < epochs",
			configerrors.FieldValue{Field: KeyProjectFromEpoch, Value: p},
			configerrors.FieldValue{Field: KeyEpochs, Value: t.Epochs})
	}

	if v.ok(KeyMilestones) {
		for i := 1; i < len(t.Milestones); i++ {
			if t.Milestones[i] <= t.Milestones[i-1] {
				v.crossFieldError("milestones strictly increasing",
					configerrors.FieldValue{Field: KeyMilestones, Value: t.Milestones})
				break
			}
		}
		if v.ok(KeyEpochs) && len(t.Milestones) > 0 && slices.Max(t.Milestones) >= t.Epochs {
			v.crossFieldError("every milestone < epochs",
				configerrors.FieldValue{Field: KeyMilestones, Value: t.Milestones},
				configerrors.FieldValue{Field: KeyEpochs, Value: t.Epochs})
		}
		if v.ok(KeyGamma) && len(t.Milestones) > 0 && t.Gamma == 0 {
			v.crossFieldError("gamma > 0 when milestones are set",
				configerrors.FieldValue{Field: KeyGamma, Value: t.Gamma},
				configerrors.FieldValue{Field: KeyMilestones, Value: t.Milestones})
		}
	}

	if v.ok(KeyOptimizer, KeyMomentum) && t.Optimizer.UsesMomentum() && t.Momentum >= 1 {
		v.crossFieldError("momentum < 1 for optimizer SGD",
			configerrors.FieldValue{Field: KeyMomentum, Value: t.Momentum},
			configerrors.FieldValue{Field: KeyOptimizer, Value: t.Optimizer})
	}
}
