package models

// ValueKind is the JSON kind of a sampled value.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindBool   ValueKind = "bool"
	KindNumber ValueKind = "number"
	KindString ValueKind = "string"
	KindArray  ValueKind = "array"
	KindObject ValueKind = "object"
)

// TreeNode is one addressable key of a sample document. Key is unique within
// its tree; Payload.Path lists the property names from the document root.
type TreeNode struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Children []TreeNode  `json:"children,omitempty"`
	Payload  NodePayload `json:"data"`
}

type NodePayload struct {
	RawValue any       `json:"value"`
	Path     []string  `json:"path"`
	Kind     ValueKind `json:"kind"`
	// ElemKind is the kind of the first element when Kind is KindArray.
	ElemKind ValueKind `json:"elemKind,omitempty"`
}

func (n TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}
