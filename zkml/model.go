package zkml

import (
	"encoding/json"
	"fmt"
	"os"
)

// FeatureCount is the fixed witness arity of the rug-pull classifier: 60
// quantized contract features per inference.
const FeatureCount = 60

// modelFormatVersion is the only model document version this decoder accepts.
const modelFormatVersion = 1

// ModelGraph is the on-disk form of the trained classifier: a fixed
// computation graph over integer tensors, exported after quantization. The
// graph is read once and treated as immutable.
type ModelGraph struct {
	FormatVersion int                `json:"format_version"`
	Name          string             `json:"name"`
	Scale         int64              `json:"scale"`
	Input         ModelInput         `json:"input"`
	Output        ModelOutput        `json:"output"`
	Initializers  []ModelInitializer `json:"initializers"`
	Nodes         []ModelNode        `json:"nodes"`
}

// ModelInput names the graph input and fixes its shape.
type ModelInput struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// ModelOutput names the tensor the graph exposes as its public result.
type ModelOutput struct {
	Name string `json:"name"`
}

// ModelInitializer is a constant integer tensor baked into the model
// (weights, biases), already multiplied by the fixed-point scale.
type ModelInitializer struct {
	Name  string  `json:"name"`
	Shape []int   `json:"shape"`
	Data  []int64 `json:"data"`
}

// ModelNode is one operator application. Inputs refer to the graph input,
// initializers, or outputs of earlier nodes by name.
type ModelNode struct {
	Op     string   `json:"op"`
	Inputs []string `json:"inputs"`
	Output string   `json:"output"`
}

// LoadModel reads and validates a model graph document. The raw file bytes
// feed the program digest later, so the same file always yields the same
// graph.
func LoadModel(path string) (*ModelGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return parseModel(data)
}

func parseModel(data []byte) (*ModelGraph, error) {
	var graph ModelGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("%w: parse model: %v", ErrModelLoad, err)
	}
	if err := graph.validate(); err != nil {
		return nil, err
	}
	return &graph, nil
}

func (g *ModelGraph) validate() error {
	if g.FormatVersion != modelFormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrModelLoad, g.FormatVersion)
	}
	if g.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %d", ErrModelLoad, g.Scale)
	}
	if len(g.Input.Shape) != 2 || g.Input.Shape[0] != 1 || g.Input.Shape[1] != FeatureCount {
		return fmt.Errorf("%w: input shape must be [1,%d], got %v", ErrModelLoad, FeatureCount, g.Input.Shape)
	}
	if g.Input.Name == "" {
		return fmt.Errorf("%w: input name is empty", ErrModelLoad)
	}
	if g.Output.Name == "" {
		return fmt.Errorf("%w: output name is empty", ErrModelLoad)
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: graph has no nodes", ErrModelLoad)
	}
	seen := map[string]bool{g.Input.Name: true}
	for i, init := range g.Initializers {
		if init.Name == "" {
			return fmt.Errorf("%w: initializer %d has no name", ErrModelLoad, i)
		}
		if seen[init.Name] {
			return fmt.Errorf("%w: duplicate tensor name %q", ErrModelLoad, init.Name)
		}
		seen[init.Name] = true
		if len(init.Shape) != 2 || init.Shape[0] <= 0 || init.Shape[1] <= 0 {
			return fmt.Errorf("%w: initializer %q shape must be 2-D, got %v", ErrModelLoad, init.Name, init.Shape)
		}
		if len(init.Data) != init.Shape[0]*init.Shape[1] {
			return fmt.Errorf("%w: initializer %q has %d values, shape %v wants %d",
				ErrModelLoad, init.Name, len(init.Data), init.Shape, init.Shape[0]*init.Shape[1])
		}
	}
	for i, node := range g.Nodes {
		if node.Output == "" {
			return fmt.Errorf("%w: node %d has no output name", ErrModelLoad, i)
		}
		if seen[node.Output] {
			return fmt.Errorf("%w: duplicate tensor name %q", ErrModelLoad, node.Output)
		}
		seen[node.Output] = true
	}
	return nil
}
