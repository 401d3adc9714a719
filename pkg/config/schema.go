package config

import (
	"strings"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
)

// Recognized keys of the parameter file, in file order.
const (
	KeyCUBDir        = "cub_dir"
	KeyCUBImagesDir  = "cub_images_dir"
	KeyDatasetDir    = "dataset_dir"
	KeyTrainDir      = "train_dir"
	KeyValDir        = "val_dir"
	KeyTestDir       = "test_dir"
	KeyOutputDir     = "output_dir"
	KeyDataset       = "dataset"
	KeyImgSize       = "img_size"
	KeyBackbone      = "backbone"
	KeyModelType     = "model_type"
	KeyW1            = "W1"
	KeyH1            = "H1"
	KeyNumFeatures   = "num_features"
	KeyExplain       = "explain"
	KeyDepth         = "depth"
	KeyBatchSize     = "batch_size"
	KeyEpochs        = "epochs"
	KeyFreezeEpochs  = "freeze_epochs"
	KeyOptimizer     = "optimizer"
	KeyLRMain        = "lr_main"
	KeyLRBackbone    = "lr_backbone"
	KeyMomentum      = "momentum"
	KeyWeightDecay   = "weight_decay_main"
	KeyWeightDecayBB = "weight_decay_backbone"
	KeyGamma         = "gamma"
	KeyMilestones    = "milestones"

	KeyDisablePretrained     = "disable_pretrained"
	KeyDisableCUDA           = "disable_cuda"
	KeyGradientLeafOpt       = "gradient_leaf_opt"
	KeyUseSimilarity         = "use_similarity"
	KeyProjectFromEpoch      = "project_from_epoch"
	KeyEveryNEpochs          = "every_n_epochs"
	KeySaveTopK              = "save_top_k"
	KeyLeafPruningMultiplier = "leaf_pruning_multiplier"
	KeyModelCheckpoint       = "model_checkpoint"
	KeyPrototypesInfoPath    = "prototypes_info_path"
	KeyExplainPrototype      = "explain_prototype"
	KeyImgModifications      = "img_modifications"

	KeyPrototypesPerClass = "prototypes_per_class"
	KeyLeafOptEWMAAlpha   = "leaf_opt_ewma_alpha"
	KeySamplingStrategy   = "sampling_strategy"
)

// disabledEpoch is the file encoding of an unset epoch option.
const disabledEpoch = -1

// decoder coerces raw document values into a Sections value, collecting a
// TypeError for every value it cannot convert. Keys that failed are recorded
// in bad so that validation does not report them a second time.
type decoder struct {
	s    *Sections
	errs []*configerrors.Error
	bad  map[string]bool
}

func newDecoder() *decoder {
	return &decoder{s: &Sections{}, bad: make(map[string]bool)}
}

func (d *decoder) typeError(key string, raw interface{}, expected string) {
	d.errs = append(d.errs, configerrors.NewTypeError(key, raw, expected))
	d.bad[key] = true
}

type fieldSpec struct {
	key      string
	expected string
	required bool
	def      interface{}
	decode   func(d *decoder, key string, raw interface{})
}

// withDefault makes the field optional; def is fed through the same decoder.
func (f fieldSpec) withDefault(def interface{}) fieldSpec {
	f.required = false
	f.def = def
	return f
}

func intField(key string, ptr func(*Sections) *int) fieldSpec {
	return fieldSpec{key: key, expected: "integer", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toInt(raw)
			if !ok {
				d.typeError(key, raw, "integer")
				return
			}
			*ptr(d.s) = v
		}}
}

func floatField(key string, ptr func(*Sections) *float64) fieldSpec {
	return fieldSpec{key: key, expected: "number", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toFloat(raw)
			if !ok {
				d.typeError(key, raw, "number")
				return
			}
			*ptr(d.s) = v
		}}
}

func boolField(key string, ptr func(*Sections) *bool) fieldSpec {
	return fieldSpec{key: key, expected: "boolean", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toBool(raw)
			if !ok {
				d.typeError(key, raw, "boolean")
				return
			}
			*ptr(d.s) = v
		}}
}

func pathField(key string, ptr func(*Sections) *string) fieldSpec {
	return fieldSpec{key: key, expected: "path", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toString(raw)
			if !ok {
				d.typeError(key, raw, "path")
				return
			}
			*ptr(d.s) = v
		}}
}

// optionalPathField maps the empty string to an unset path.
func optionalPathField(key string, ptr func(*Sections) *Optional[string]) fieldSpec {
	return fieldSpec{key: key, expected: "path", def: "",
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toString(raw)
			if !ok {
				d.typeError(key, raw, "path")
				return
			}
			if v == "" {
				*ptr(d.s) = None[string]()
				return
			}
			*ptr(d.s) = Some(v)
		}}
}

// enumField normalizes the spelling of known values. Unknown strings are kept
// verbatim and reported by validation as range errors.
func enumField[T ~string](key string, parse func(string) (T, error), ptr func(*Sections) *T) fieldSpec {
	return fieldSpec{key: key, expected: "string", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			s, ok := raw.(string)
			if !ok {
				d.typeError(key, raw, "string")
				return
			}
			s = strings.TrimSpace(s)
			if v, err := parse(s); err == nil {
				*ptr(d.s) = v
				return
			}
			*ptr(d.s) = T(s)
		}}
}

var schema = []fieldSpec{
	pathField(KeyCUBDir, func(s *Sections) *string { return &s.Paths.CUBDir }),
	pathField(KeyCUBImagesDir, func(s *Sections) *string { return &s.Paths.CUBImagesDir }),
	pathField(KeyDatasetDir, func(s *Sections) *string { return &s.Paths.DatasetDir }),
	pathField(KeyTrainDir, func(s *Sections) *string { return &s.Paths.TrainDir }),
	pathField(KeyValDir, func(s *Sections) *string { return &s.Paths.ValDir }),
	pathField(KeyTestDir, func(s *Sections) *string { return &s.Paths.TestDir }),
	pathField(KeyOutputDir, func(s *Sections) *string { return &s.Paths.OutputDir }),

	enumField(KeyDataset, ParseDataset, func(s *Sections) *Dataset { return &s.Dataset.Dataset }),
	{key: KeyImgSize, expected: "[height, width]", required: true,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toImageSize(raw)
			if !ok {
				d.typeError(key, raw, "[height, width]")
				return
			}
			d.s.Dataset.ImgSize = v
		}},

	enumField(KeyBackbone, ParseBackbone, func(s *Sections) *Backbone { return &s.Model.Backbone }),
	enumField(KeyModelType, ParseModelType, func(s *Sections) *ModelType { return &s.Model.ModelType }),

	intField(KeyW1, func(s *Sections) *int { return &s.Prototype.W1 }),
	intField(KeyH1, func(s *Sections) *int { return &s.Prototype.H1 }),
	intField(KeyNumFeatures, func(s *Sections) *int { return &s.Prototype.NumFeatures }),
	boolField(KeyExplain, func(s *Sections) *bool { return &s.Prototype.Explain }).withDefault(false),
	intField(KeyDepth, func(s *Sections) *int { return &s.Tree.Depth }),

	intField(KeyBatchSize, func(s *Sections) *int { return &s.Training.BatchSize }),
	intField(KeyEpochs, func(s *Sections) *int { return &s.Training.Epochs }),
	intField(KeyFreezeEpochs, func(s *Sections) *int { return &s.Training.FreezeEpochs }).withDefault(0),
	enumField(KeyOptimizer, ParseOptimizer, func(s *Sections) *Optimizer { return &s.Training.Optimizer }),
	floatField(KeyLRMain, func(s *Sections) *float64 { return &s.Training.LRMain }),
	floatField(KeyLRBackbone, func(s *Sections) *float64 { return &s.Training.LRBackbone }),
	floatField(KeyMomentum, func(s *Sections) *float64 { return &s.Training.Momentum }).withDefault(0.0),
	floatField(KeyWeightDecay, func(s *Sections) *float64 { return &s.Training.WeightDecayMain }).withDefault(0.0),
	floatField(KeyWeightDecayBB, func(s *Sections) *float64 { return &s.Training.WeightDecayBackbone }).withDefault(0.0),
	floatField(KeyGamma, func(s *Sections) *float64 { return &s.Training.Gamma }).withDefault(0.5),
	{key: KeyMilestones, expected: "list of integers", def: []interface{}{},
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toIntList(raw)
			if !ok {
				d.typeError(key, raw, "list of integers")
				return
			}
			d.s.Training.Milestones = v
		}},
	boolField(KeyDisablePretrained, func(s *Sections) *bool { return &s.Training.DisablePretrained }).withDefault(false),
	boolField(KeyDisableCUDA, func(s *Sections) *bool { return &s.Training.DisableCUDA }).withDefault(false),
	boolField(KeyGradientLeafOpt, func(s *Sections) *bool { return &s.Training.GradientLeafOpt }).withDefault(false),
	boolField(KeyUseSimilarity, func(s *Sections) *bool { return &s.Training.UseSimilarity }).withDefault(false),
	{key: KeyProjectFromEpoch, expected: "integer", def: disabledEpoch,
		decode: func(d *decoder, key string, raw interface{}) {
			v, ok := toInt(raw)
			if !ok {
				d.typeError(key, raw, "integer")
				return
			}
			if v == disabledEpoch {
				d.s.Training.ProjectFromEpoch = None[int]()
				return
			}
			d.s.Training.ProjectFromEpoch = Some(v)
		}},
	intField(KeyEveryNEpochs, func(s *Sections) *int { return &s.Training.EveryNEpochs }).withDefault(1),
	intField(KeySaveTopK, func(s *Sections) *int { return &s.Training.SaveTopK }).withDefault(1),
	floatField(KeyLeafPruningMultiplier, func(s *Sections) *float64 { return &s.Training.LeafPruningMultiplier }).withDefault(1.0),

	optionalPathField(KeyModelCheckpoint, func(s *Sections) *Optional[string] { return &s.Test.ModelCheckpoint }),
	optionalPathField(KeyPrototypesInfoPath, func(s *Sections) *Optional[string] { return &s.Test.PrototypesInfoPath }),
	boolField(KeyExplainPrototype, func(s *Sections) *bool { return &s.Test.ExplainPrototype }).withDefault(false),
	{key: KeyImgModifications, expected: "list of image modifications", def: []interface{}{},
		decode: func(d *decoder, key string, raw interface{}) {
			items, ok := toList(raw)
			if !ok {
				d.typeError(key, raw, "list of image modifications")
				return
			}
			mods := make([]ImgModification, 0, len(items))
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					d.typeError(key, item, "image modification name")
					return
				}
				s = strings.TrimSpace(s)
				if m, err := ParseImgModification(s); err == nil {
					mods = append(mods, m)
					continue
				}
				mods = append(mods, ImgModification(s))
			}
			d.s.Explanation.ImgModifications = mods
		}},

	intField(KeyPrototypesPerClass, func(s *Sections) *int { return &s.Prototype.PrototypesPerClass }).withDefault(10),
	floatField(KeyLeafOptEWMAAlpha, func(s *Sections) *float64 { return &s.Tree.LeafOptEWMAAlpha }).withDefault(0.5),
	enumField(KeySamplingStrategy, ParseSamplingStrategy, func(s *Sections) *SamplingStrategy { return &s.Tree.SamplingStrategy }).
		withDefault(string(SamplingDistributed)),
}

// Keys returns the recognized keys in file order.
func Keys() []string {
	keys := make([]string, len(schema))
	for i, f := range schema {
		keys[i] = f.key
	}
	return keys
}

// lookupKey resolves a key case-insensitively to its canonical spelling.
func lookupKey(key string) (string, bool) {
	for _, f := range schema {
		if strings.EqualFold(f.key, key) {
			return f.key, true
		}
	}
	return "", false
}
