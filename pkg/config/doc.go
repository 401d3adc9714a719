// Package config loads, validates and serializes the parameter file of a
// prototype-based image classification experiment (ProtoTree or ProtoPNet).
//
// # Key Features
//
// - Flat YAML parameter file with a fixed set of recognized keys (see Keys)
// - Strict coercion: "abc" is never an integer and 2.5 is never truncated
// - All-or-nothing loading: every problem is reported together in one *configerrors.List
// - Environment variable substitution with ${VAR_NAME} syntax
// - Optional environment overrides (PROTOTRAIN_EPOCHS=50) through viper
// - Immutable ExperimentConfig that can be shared between components
// - Derived training schedule (prototype counts, freezing, learning rate decay)
//
// # Usage
//
// ## Loading a Parameter File
//
//	cfg, err := config.LoadFile(ctx, "params.yml",
//		config.WithLogger(logger),
//		config.WithUnknownKeys(config.UnknownKeysWarn),
//	)
//	if err != nil {
//		var list *configerrors.List
//		if errors.As(err, &list) {
//			for _, e := range list.Errors() {
//				fmt.Println(e)
//			}
//		}
//		return err
//	}
//
// ## Reading Sections
//
//	training := cfg.Training()
//	fmt.Println(training.Epochs, training.Optimizer)
//
//	if from, ok := training.ProjectFromEpoch.Get(); ok {
//		fmt.Println("projecting prototypes from epoch", from)
//	}
//
// ## Building a Variant
//
//	s := cfg.Sections()
//	s.Tree.Depth = 11
//	deeper, err := config.New(s)
//
// # File Format
//
//	dataset: CUB
//	img_size: [224, 224]
//	backbone: resnet50_inat
//	model_type: prototree
//	depth: 9
//	epochs: 100
//	freeze_epochs: 30
//	milestones: [60, 70, 80, 90]
//	project_from_epoch: -1   # disabled
//	model_checkpoint: ""     # unset
//
// Epoch indices (milestones, project_from_epoch) are 0-based. The sentinels
// -1 and "" only exist in the file; in memory they are unset Optional values.
//
// # Validation Order
//
// 1. The document must be a YAML mapping (ErrorTypeParse, reported alone)
// 2. Missing required keys and uncoercible values (ErrorTypeType)
// 3. Unknown keys, unless WithUnknownKeys(UnknownKeysWarn) (ErrorTypeUnknownKey)
// 4. Single-field ranges and enum membership (ErrorTypeRange)
// 5. Relations between fields (ErrorTypeCrossField)
//
// A key that fails one step is not checked again by a later one.
package config
