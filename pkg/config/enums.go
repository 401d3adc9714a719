package config

import (
	"fmt"
	"strings"
)

// Dataset identifies the image collection an experiment trains on.
type Dataset string

const (
	// DatasetCUB is Caltech-UCSD Birds-200-2011
	DatasetCUB Dataset = "CUB"
	// DatasetCARS is Stanford Cars
	DatasetCARS Dataset = "CARS"
)

// Datasets lists every recognized dataset identifier.
var Datasets = []Dataset{DatasetCUB, DatasetCARS}

// ParseDataset matches s case-insensitively against the known datasets.
func ParseDataset(s string) (Dataset, error) {
	for _, d := range Datasets {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// NumClasses returns the number of target classes of the dataset.
func (d Dataset) NumClasses() int {
	switch d {
	case DatasetCUB:
		return 200
	case DatasetCARS:
		return 196
	default:
		return 0
	}
}

func (d Dataset) String() string { return string(d) }

// ModelType selects the downstream classification head.
type ModelType string

const (
	// ModelTypeProtoTree is a soft decision tree with one prototype per internal node
	ModelTypeProtoTree ModelType = "prototree"
	// ModelTypeProtoPNet is a flat bank of class-specific prototypes
	ModelTypeProtoPNet ModelType = "protopnet"
)

// ModelTypes lists every recognized model type.
var ModelTypes = []ModelType{ModelTypeProtoTree, ModelTypeProtoPNet}

// ParseModelType matches s case-insensitively against the known model types.
func ParseModelType(s string) (ModelType, error) {
	for _, m := range ModelTypes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model type %q", s)
}

func (m ModelType) String() string { return string(m) }

// Backbone names a pretrained feature extractor.
type Backbone string

// Supported feature extractors.
const (
	BackboneResNet18     Backbone = "resnet18"
	BackboneResNet34     Backbone = "resnet34"
	BackboneResNet50     Backbone = "resnet50"
	BackboneResNet50INat Backbone = "resnet50_inat"
	BackboneResNet101    Backbone = "resnet101"
	BackboneResNet152    Backbone = "resnet152"
	BackboneDenseNet121  Backbone = "densenet121"
	BackboneDenseNet161  Backbone = "densenet161"
	BackboneDenseNet169  Backbone = "densenet169"
	BackboneDenseNet201  Backbone = "densenet201"
	BackboneVGG11        Backbone = "vgg11"
	BackboneVGG11BN      Backbone = "vgg11_bn"
	BackboneVGG13        Backbone = "vgg13"
	BackboneVGG13BN      Backbone = "vgg13_bn"
	BackboneVGG16        Backbone = "vgg16"
	BackboneVGG16BN      Backbone = "vgg16_bn"
	BackboneVGG19        Backbone = "vgg19"
	BackboneVGG19BN      Backbone = "vgg19_bn"
)

// Backbones lists every supported feature extractor.
var Backbones = []Backbone{
	BackboneResNet18, BackboneResNet34, BackboneResNet50, BackboneResNet50INat,
	BackboneResNet101, BackboneResNet152,
	BackboneDenseNet121, BackboneDenseNet161, BackboneDenseNet169, BackboneDenseNet201,
	BackboneVGG11, BackboneVGG11BN, BackboneVGG13, BackboneVGG13BN,
	BackboneVGG16, BackboneVGG16BN, BackboneVGG19, BackboneVGG19BN,
}

// ParseBackbone matches s case-insensitively against the supported extractors.
func ParseBackbone(s string) (Backbone, error) {
	for _, b := range Backbones {
		if strings.EqualFold(s, string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported backbone %q", s)
}

// Family returns the architecture family ("resnet", "densenet" or "vgg").
func (b Backbone) Family() string {
	s := string(b)
	switch {
	case strings.HasPrefix(s, "resnet"):
		return "resnet"
	case strings.HasPrefix(s, "densenet"):
		return "densenet"
	case strings.HasPrefix(s, "vgg"):
		return "vgg"
	default:
		return ""
	}
}

func (b Backbone) String() string { return string(b) }

// Optimizer names a supported optimization algorithm.
type Optimizer string

const (
	// OptimizerAdam is Adam
	OptimizerAdam Optimizer = "Adam"
	// OptimizerAdamW is Adam with decoupled weight decay
	OptimizerAdamW Optimizer = "AdamW"
	// OptimizerSGD is stochastic gradient descent with momentum
	OptimizerSGD Optimizer = "SGD"
)

// Optimizers lists every supported optimizer.
var Optimizers = []Optimizer{OptimizerAdam, OptimizerAdamW, OptimizerSGD}

// ParseOptimizer matches s case-insensitively against the supported optimizers.
func ParseOptimizer(s string) (Optimizer, error) {
	for _, o := range Optimizers {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", fmt.Errorf("unsupported optimizer %q", s)
}

// UsesMomentum reports whether the momentum parameter is read by the optimizer.
func (o Optimizer) UsesMomentum() bool {
	switch o {
	case OptimizerSGD:
		return true
	case OptimizerAdam, OptimizerAdamW:
		return false
	default:
		return false
	}
}

func (o Optimizer) String() string { return string(o) }

// ImgModification is a visual perturbation used to probe what a prototype encodes.
type ImgModification string

// Closed vocabulary of image modifications.
const (
	ModHue        ImgModification = "hue"
	ModSaturation ImgModification = "saturation"
	ModTexture    ImgModification = "texture"
	ModColor      ImgModification = "color"
	ModContrast   ImgModification = "contrast"
	ModShape      ImgModification = "shape"
)

// ImgModifications lists the closed vocabulary of image modifications.
var ImgModifications = []ImgModification{ModHue, ModSaturation, ModTexture, ModColor, ModContrast, ModShape}

// ParseImgModification matches s case-insensitively against the vocabulary.
func ParseImgModification(s string) (ImgModification, error) {
	for _, m := range ImgModifications {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown image modification %q", s)
}

func (m ImgModification) String() string { return string(m) }

// SamplingStrategy selects how a ProtoTree turns leaf distributions into a prediction.
type SamplingStrategy string

const (
	// SamplingDistributed weights every leaf by its arrival probability
	SamplingDistributed SamplingStrategy = "distributed"
	// SamplingSampleMax uses the leaf with the highest arrival probability
	SamplingSampleMax SamplingStrategy = "sample_max"
	// SamplingGreedy descends the tree following the more probable child
	SamplingGreedy SamplingStrategy = "greedy"
)

// SamplingStrategies lists every supported sampling strategy.
var SamplingStrategies = []SamplingStrategy{SamplingDistributed, SamplingSampleMax, SamplingGreedy}

// ParseSamplingStrategy matches s case-insensitively against the known strategies.
func ParseSamplingStrategy(s string) (SamplingStrategy, error) {
	for _, st := range SamplingStrategies {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown sampling strategy %q", s)
}

func (s SamplingStrategy) String() string { return string(s) }

func joinNames[T ~string](values []T) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
