package config

import "math"

// ParamGroup selects which learning rate a schedule query is about.
type ParamGroup int

const (
	// GroupMain covers the add-on layers, prototypes and classification head
	GroupMain ParamGroup = iota
	// GroupBackbone covers the pretrained feature extractor
	GroupBackbone
)

// Schedule derives the per-epoch quantities a training loop reads from a
// configuration. All epochs are 0-based, like milestones and project_from_epoch.
type Schedule struct {
	dataset  Dataset
	model    ModelType
	depth    int
	perClass int
	training TrainingConfig
}

// Schedule returns the derived schedule of the configuration.
func (c *ExperimentConfig) Schedule() Schedule {
	return Schedule{
		dataset:  c.s.Dataset.Dataset,
		model:    c.s.Model.ModelType,
		depth:    c.s.Tree.Depth,
		perClass: c.s.Prototype.PrototypesPerClass,
		training: c.s.Training.clone(),
	}
}

// NumPrototypes returns the size of the prototype bank: one prototype per
// internal node for a ProtoTree, PrototypesPerClass per class for a ProtoPNet.
func (s Schedule) NumPrototypes() int {
	switch s.model {
	case ModelTypeProtoTree:
		return s.NumInternalNodes()
	case ModelTypeProtoPNet:
		return s.dataset.NumClasses() * s.perClass
	default:
		return 0
	}
}

// NumLeaves returns 2^depth for a ProtoTree and 0 otherwise.
func (s Schedule) NumLeaves() int {
	switch s.model {
	case ModelTypeProtoTree:
		return 1 << s.depth
	case ModelTypeProtoPNet:
		return 0
	default:
		return 0
	}
}

// NumInternalNodes returns 2^depth-1 for a ProtoTree and 0 otherwise.
func (s Schedule) NumInternalNodes() int {
	if n := s.NumLeaves(); n > 0 {
		return n - 1
	}
	return 0
}

// BackboneFrozen reports whether the backbone is held fixed during epoch.
func (s Schedule) BackboneFrozen(epoch int) bool {
	return epoch < s.training.FreezeEpochs
}

// ProjectionActive reports whether prototypes are projected onto training
// patches at the end of epoch.
func (s Schedule) ProjectionActive(epoch int) bool {
	from, ok := s.training.ProjectFromEpoch.Get()
	return ok && epoch >= from
}

// LearningRate returns the learning rate of group during epoch under a
// multi-step decay: the base rate times gamma for every milestone <= epoch.
func (s Schedule) LearningRate(group ParamGroup, epoch int) float64 {
	base := s.training.LRMain
	if group == GroupBackbone {
		base = s.training.LRBackbone
	}
	steps := 0
	for _, m := range s.training.Milestones {
		if m <= epoch {
			steps++
		}
	}
	return base * math.Pow(s.training.Gamma, float64(steps))
}

// CheckpointEpochs returns the epochs after which a checkpoint is written.
func (s Schedule) CheckpointEpochs() []int {
	n := s.training.EveryNEpochs
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, s.training.Epochs/n)
	for e := n - 1; e < s.training.Epochs; e += n {
		out = append(out, e)
	}
	return out
}
