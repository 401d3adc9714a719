package config

import (
	"bytes"
	"os"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/prototrain/pkg/configerrors"
)

// document is the flat on-disk form of an ExperimentConfig. Field order is the
// order keys are written in; unset optionals use the file sentinels.
type document struct {
	CUBDir       string `yaml:"cub_dir" json:"cub_dir"`
	CUBImagesDir string `yaml:"cub_images_dir" json:"cub_images_dir"`
	DatasetDir   string `yaml:"dataset_dir" json:"dataset_dir"`
	TrainDir     string `yaml:"train_dir" json:"train_dir"`
	ValDir       string `yaml:"val_dir" json:"val_dir"`
	TestDir      string `yaml:"test_dir" json:"test_dir"`
	OutputDir    string `yaml:"output_dir" json:"output_dir"`

	Dataset string `yaml:"dataset" json:"dataset"`
	ImgSize []int  `yaml:"img_size,flow" json:"img_size"`

	Backbone    string `yaml:"backbone" json:"backbone"`
	ModelType   string `yaml:"model_type" json:"model_type"`
	W1          int    `yaml:"W1" json:"W1"`
	H1          int    `yaml:"H1" json:"H1"`
	NumFeatures int    `yaml:"num_features" json:"num_features"`
	Explain     bool   `yaml:"explain" json:"explain"`
	Depth       int    `yaml:"depth" json:"depth"`

	BatchSize             int     `yaml:"batch_size" json:"batch_size"`
	Epochs                int     `yaml:"epochs" json:"epochs"`
	FreezeEpochs          int     `yaml:"freeze_epochs" json:"freeze_epochs"`
	Optimizer             string  `yaml:"optimizer" json:"optimizer"`
	LRMain                float64 `yaml:"lr_main" json:"lr_main"`
	LRBackbone            float64 `yaml:"lr_backbone" json:"lr_backbone"`
	Momentum              float64 `yaml:"momentum" json:"momentum"`
	WeightDecayMain       float64 `yaml:"weight_decay_main" json:"weight_decay_main"`
	WeightDecayBackbone   float64 `yaml:"weight_decay_backbone" json:"weight_decay_backbone"`
	Gamma                 float64 `yaml:"gamma" json:"gamma"`
	Milestones            []int   `yaml:"milestones,flow" json:"milestones"`
	DisablePretrained     bool    `yaml:"disable_pretrained" json:"disable_pretrained"`
	DisableCUDA           bool    `yaml:"disable_cuda" json:"disable_cuda"`
	GradientLeafOpt       bool    `yaml:"gradient_leaf_opt" json:"gradient_leaf_opt"`
	UseSimilarity         bool    `yaml:"use_similarity" json:"use_similarity"`
	ProjectFromEpoch      int     `yaml:"project_from_epoch" json:"project_from_epoch"`
	EveryNEpochs          int     `yaml:"every_n_epochs" json:"every_n_epochs"`
	SaveTopK              int     `yaml:"save_top_k" json:"save_top_k"`
	LeafPruningMultiplier float64 `yaml:"leaf_pruning_multiplier" json:"leaf_pruning_multiplier"`

	ModelCheckpoint    string   `yaml:"model_checkpoint" json:"model_checkpoint"`
	PrototypesInfoPath string   `yaml:"prototypes_info_path" json:"prototypes_info_path"`
	ExplainPrototype   bool     `yaml:"explain_prototype" json:"explain_prototype"`
	ImgModifications   []string `yaml:"img_modifications,flow" json:"img_modifications"`

	PrototypesPerClass int     `yaml:"prototypes_per_class" json:"prototypes_per_class"`
	LeafOptEWMAAlpha   float64 `yaml:"leaf_opt_ewma_alpha" json:"leaf_opt_ewma_alpha"`
	SamplingStrategy   string  `yaml:"sampling_strategy" json:"sampling_strategy"`
}

func (c *ExperimentConfig) document() document {
	s := c.s.clone()
	mods := make([]string, len(s.Explanation.ImgModifications))
	for i, m := range s.Explanation.ImgModifications {
		mods[i] = string(m)
	}
	return document{
		CUBDir:       s.Paths.CUBDir,
		CUBImagesDir: s.Paths.CUBImagesDir,
		DatasetDir:   s.Paths.DatasetDir,
		TrainDir:     s.Paths.TrainDir,
		ValDir:       s.Paths.ValDir,
		TestDir:      s.Paths.TestDir,
		OutputDir:    s.Paths.OutputDir,

		Dataset: string(s.Dataset.Dataset),
		ImgSize: []int{s.Dataset.ImgSize.Height, s.Dataset.ImgSize.Width},

		Backbone:    string(s.Model.Backbone),
		ModelType:   string(s.Model.ModelType),
		W1:          s.Prototype.W1,
		H1:          s.Prototype.H1,
		NumFeatures: s.Prototype.NumFeatures,
		Explain:     s.Prototype.Explain,
		Depth:       s.Tree.Depth,

		BatchSize:             s.Training.BatchSize,
		Epochs:                s.Training.Epochs,
		FreezeEpochs:          s.Training.FreezeEpochs,
		Optimizer:             string(s.Training.Optimizer),
		LRMain:                s.Training.LRMain,
		LRBackbone:            s.Training.LRBackbone,
		Momentum:              s.Training.Momentum,
		WeightDecayMain:       s.Training.WeightDecayMain,
		WeightDecayBackbone:   s.Training.WeightDecayBackbone,
		Gamma:                 s.Training.Gamma,
		Milestones:            s.Training.Milestones,
		DisablePretrained:     s.Training.DisablePretrained,
		DisableCUDA:           s.Training.DisableCUDA,
		GradientLeafOpt:       s.Training.GradientLeafOpt,
		UseSimilarity:         s.Training.UseSimilarity,
		ProjectFromEpoch:      s.Training.ProjectFromEpoch.OrElse(disabledEpoch),
		EveryNEpochs:          s.Training.EveryNEpochs,
		SaveTopK:              s.Training.SaveTopK,
		LeafPruningMultiplier: s.Training.LeafPruningMultiplier,

		ModelCheckpoint:    s.Test.ModelCheckpoint.OrElse(""),
		PrototypesInfoPath: s.Test.PrototypesInfoPath.OrElse(""),
		ExplainPrototype:   s.Test.ExplainPrototype,
		ImgModifications:   mods,

		PrototypesPerClass: s.Prototype.PrototypesPerClass,
		LeafOptEWMAAlpha:   s.Tree.LeafOptEWMAAlpha,
		SamplingStrategy:   string(s.Tree.SamplingStrategy),
	}
}

// MarshalYAML implements yaml.Marshaler with the flat parameter file layout.
func (c *ExperimentConfig) MarshalYAML() (interface{}, error) {
	return c.document(), nil
}

// MarshalJSON renders the flat parameter file layout as JSON.
func (c *ExperimentConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.document())
}

// Marshal serializes the configuration to YAML. Loading the result yields a
// configuration equal to c.
func (c *ExperimentConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.document()); err != nil {
		return nil, configerrors.Wrap(err, configerrors.ErrorTypeInternal, "failed to marshal YAML")
	}
	if err := enc.Close(); err != nil {
		return nil, configerrors.Wrap(err, configerrors.ErrorTypeInternal, "failed to marshal YAML")
	}
	return buf.Bytes(), nil
}

// Save writes the configuration to filePath as YAML.
func (c *ExperimentConfig) Save(filePath string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return configerrors.Wrap(err, configerrors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", filePath)
	}

	return nil
}
