// Package testutil provides testing utilities for prototrain
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

// ExampleConfig is the ProtoTree-on-CUB parameter file used across tests.
const ExampleConfig = `# Paths
cub_dir: data/CUB_200_2011
cub_images_dir: data/CUB_200_2011/images
dataset_dir: data/CUB_200_2011/dataset
train_dir: data/CUB_200_2011/dataset/train_corners
val_dir: data/CUB_200_2011/dataset/train_crop
test_dir: data/CUB_200_2011/dataset/test_full
output_dir: runs/prototree_cub

# Dataset
dataset: CUB
img_size: [224, 224]

# Model
backbone: resnet50_inat
model_type: prototree
W1: 1
H1: 1
num_features: 256
explain: false
depth: 9

# Training
batch_size: 64
epochs: 100
freeze_epochs: 30
optimizer: AdamW
lr_main: 0.001
lr_backbone: 0.00001
momentum: 0.9
weight_decay_main: 0.0
weight_decay_backbone: 0.0
gamma: 0.5
milestones: [60, 70, 80, 90]
disable_pretrained: false
disable_cuda: false
gradient_leaf_opt: false
use_similarity: false
project_from_epoch: -1
every_n_epochs: 5
save_top_k: 1
leaf_pruning_multiplier: 11.0

# Test
model_checkpoint: ""
prototypes_info_path: ""
explain_prototype: false
img_modifications: [hue, shape, texture, contrast, saturation]
`

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger whose entries can be inspected by the test.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// WriteConfig writes content to name inside a fresh temporary directory and
// returns the file path.
func WriteConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// WithValues returns doc with the given top-level keys replaced or added.
// A nil value removes the key.
func WithValues(t *testing.T, doc string, values map[string]interface{}) string {
	t.Helper()

	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &root))
	require.Equal(t, yaml.DocumentNode, root.Kind)
	mapping := root.Content[0]
	require.Equal(t, yaml.MappingNode, mapping.Kind)

	for key, value := range values {
		idx := -1
		for i := 0; i < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				idx = i
				break
			}
		}

		if value == nil {
			if idx >= 0 {
				mapping.Content = append(mapping.Content[:idx], mapping.Content[idx+2:]...)
			}
			continue
		}

		var node yaml.Node
		require.NoError(t, node.Encode(value))
		if idx >= 0 {
			mapping.Content[idx+1] = &node
			continue
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &node)
	}

	out, err := yaml.Marshal(&root)
	require.NoError(t, err)
	return string(out)
}
