package config

import (
	"reflect"
	"slices"
)

// ExperimentConfig is the validated, immutable configuration of one experiment
// run. It is produced by Load or New and only exposes copies of its state, so
// components that receive a *ExperimentConfig can share it without coordination.
//
// The configuration is organized into sections, one per consumer:
//   - Paths, Dataset: dataset loading
//   - Model, Prototype, Tree: model construction
//   - Training: the training loop
//   - Test, Explanation: evaluation and prototype explanation
type ExperimentConfig struct {
	s Sections
}

// Sections is the mutable, exported form of an ExperimentConfig. It is used to
// build a configuration programmatically (see New) and is returned by
// ExperimentConfig.Sections as a deep copy.
type Sections struct {
	Paths       PathsConfig
	Dataset     DatasetConfig
	Model       ModelConfig
	Prototype   PrototypeConfig
	Tree        TreeConfig
	Training    TrainingConfig
	Test        TestConfig
	Explanation ExplanationConfig
}

// PathsConfig contains the filesystem locations used by a run.
// Existence is checked by whichever stage opens them, not at load time.
type PathsConfig struct {
	CUBDir       string
	CUBImagesDir string
	DatasetDir   string
	TrainDir     string
	ValDir       string
	TestDir      string
	OutputDir    string
}

// ImageSize is the input resolution fed to the backbone.
type ImageSize struct {
	Height int
	Width  int
}

// DatasetConfig selects the dataset and its input resolution.
type DatasetConfig struct {
	Dataset Dataset
	ImgSize ImageSize
}

// ModelConfig selects the feature extractor and classification head.
type ModelConfig struct {
	Backbone  Backbone
	ModelType ModelType
}

// PrototypeConfig describes the shape of every prototype tensor.
type PrototypeConfig struct {
	// W1 and H1 are the spatial size of a prototype
	W1 int
	H1 int
	// NumFeatures is the prototype depth (channels)
	NumFeatures int
	// Explain enables the explanation path during evaluation
	Explain bool
	// PrototypesPerClass is only read by ProtoPNet
	PrototypesPerClass int
}

// TreeConfig contains the ProtoTree-specific settings.
type TreeConfig struct {
	// Depth yields 2^Depth leaves and 2^Depth-1 internal nodes (one prototype each)
	Depth int
	// LeafOptEWMAAlpha smooths the derivative-free leaf distribution update
	LeafOptEWMAAlpha float64
	// SamplingStrategy selects how leaves are combined at prediction time
	SamplingStrategy SamplingStrategy
}

// TrainingConfig contains the optimization schedule.
type TrainingConfig struct {
	BatchSize int
	Epochs    int
	// FreezeEpochs is the number of initial epochs with a frozen backbone
	FreezeEpochs int

	Optimizer           Optimizer
	LRMain              float64
	LRBackbone          float64
	Momentum            float64
	WeightDecayMain     float64
	WeightDecayBackbone float64
	// Gamma is the multiplicative learning rate decay applied at each milestone
	Gamma float64
	// Milestones are strictly increasing 0-based epoch indices
	Milestones []int

	DisablePretrained bool
	DisableCUDA       bool
	GradientLeafOpt   bool
	UseSimilarity     bool

	// ProjectFromEpoch is unset when prototype projection is disabled
	ProjectFromEpoch Optional[int]

	EveryNEpochs          int
	SaveTopK              int
	LeafPruningMultiplier float64
}

// TestConfig contains the evaluation inputs. Both paths are optional.
type TestConfig struct {
	ModelCheckpoint    Optional[string]
	PrototypesInfoPath Optional[string]
	ExplainPrototype   bool
}

// ExplanationConfig lists the perturbations applied when explaining prototypes.
type ExplanationConfig struct {
	ImgModifications []ImgModification
}

// New validates s and freezes a deep copy of it into an ExperimentConfig.
// The returned error is a *configerrors.List when validation fails.
// An optional path set to "" is stored as unset, as it is when loaded.
//
// Example:
//
//	s := cfg.Sections()
//	s.Training.Epochs = 200
//	longer, err := config.New(s)
func New(s Sections) (*ExperimentConfig, error) {
	c := &ExperimentConfig{s: s.normalized()}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Sections returns a deep copy of the configuration.
func (c *ExperimentConfig) Sections() Sections {
	return c.s.clone()
}

// Paths returns the filesystem locations.
func (c *ExperimentConfig) Paths() PathsConfig { return c.s.Paths }

// Dataset returns the dataset selection.
func (c *ExperimentConfig) Dataset() DatasetConfig { return c.s.Dataset }

// Model returns the backbone and head selection.
func (c *ExperimentConfig) Model() ModelConfig { return c.s.Model }

// Prototype returns the prototype shape.
func (c *ExperimentConfig) Prototype() PrototypeConfig { return c.s.Prototype }

// Tree returns the ProtoTree settings.
func (c *ExperimentConfig) Tree() TreeConfig { return c.s.Tree }

// Training returns a copy of the optimization schedule.
func (c *ExperimentConfig) Training() TrainingConfig { return c.s.Training.clone() }

// Test returns the evaluation inputs.
func (c *ExperimentConfig) Test() TestConfig { return c.s.Test }

// Explanation returns a copy of the explanation settings.
func (c *ExperimentConfig) Explanation() ExplanationConfig { return c.s.Explanation.clone() }

// ModelType is shorthand for Model().ModelType.
func (c *ExperimentConfig) ModelType() ModelType { return c.s.Model.ModelType }

// Epochs is shorthand for Training().Epochs.
func (c *ExperimentConfig) Epochs() int { return c.s.Training.Epochs }

// Equal reports whether two configurations hold the same values.
func (c *ExperimentConfig) Equal(other *ExperimentConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return reflect.DeepEqual(c.s.clone(), other.s.clone())
}

func (s Sections) normalized() Sections {
	out := s.clone()
	out.Test.ModelCheckpoint = emptyAsNone(out.Test.ModelCheckpoint)
	out.Test.PrototypesInfoPath = emptyAsNone(out.Test.PrototypesInfoPath)
	return out
}

func emptyAsNone(o Optional[string]) Optional[string] {
	if v, ok := o.Get(); ok && v == "" {
		return None[string]()
	}
	return o
}

func (s Sections) clone() Sections {
	out := s
	out.Training = s.Training.clone()
	out.Explanation = s.Explanation.clone()
	return out
}

func (t TrainingConfig) clone() TrainingConfig {
	out := t
	out.Milestones = slices.Clone(t.Milestones)
	if out.Milestones == nil {
		out.Milestones = []int{}
	}
	return out
}

func (e ExplanationConfig) clone() ExplanationConfig {
	out := ExplanationConfig{ImgModifications: slices.Clone(e.ImgModifications)}
	if out.ImgModifications == nil {
		out.ImgModifications = []ImgModification{}
	}
	return out
}
