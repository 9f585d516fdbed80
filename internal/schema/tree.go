// Package schema derives an addressable tree from a sample JSON document so
// that individual keys and arrays can be picked as mapping sources.
//
// Arrays are assumed to be homogeneous: only the first element is ever
// sampled. For an array of arrays ("[[...]]") the children describe the first
// element of the first inner array; further inner elements are not
// addressable.
package schema

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

const (
	arraySuffix       = " [ ]"
	nestedArraySuffix = " [ [ ] ]"
)

// Build turns a JSON value into tree nodes. Object keys are visited in
// document order; arrays are visited by index. Anything that is neither an
// object nor an array (including null) yields an empty tree.
func Build(value gjson.Result, pathPrefix ...string) []models.TreeNode {
	return build(value, "", pathPrefix)
}

// BuildBytes parses raw JSON and builds its tree. Invalid JSON yields an
// empty tree.
func BuildBytes(raw []byte) []models.TreeNode {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil
	}
	return Build(gjson.ParseBytes(raw))
}

// BuildValue builds the tree of an already decoded value.
func BuildValue(v any) []models.TreeNode {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return BuildBytes(raw)
}

func build(value gjson.Result, keyPrefix string, path []string) []models.TreeNode {
	isArray := value.IsArray()
	if !isArray && !value.IsObject() {
		return nil
	}

	var nodes []models.TreeNode
	ordinal := 0
	value.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if isArray {
			name = strconv.Itoa(ordinal)
		}
		key := keyPrefix + strconv.Itoa(ordinal)
		ordinal++
		nodes = append(nodes, buildNode(name, key, v, childPath(path, name)))
		return true
	})
	return nodes
}

func buildNode(name, key string, v gjson.Result, path []string) models.TreeNode {
	node := models.TreeNode{
		Key:   key,
		Label: name,
		Payload: models.NodePayload{
			Path: path,
			Kind: kindOf(v),
		},
	}

	switch {
	case v.IsArray():
		node.Label = name + arraySuffix
		node.Payload.RawValue = compact(v)

		elems := v.Array()
		if len(elems) == 0 {
			return node
		}
		first := elems[0]
		node.Payload.ElemKind = kindOf(first)

		switch {
		case first.IsArray():
			node.Label = name + nestedArraySuffix
			if inner := first.Array(); len(inner) > 0 {
				node.Children = build(inner[0], key+"-", path)
			}
		case first.IsObject():
			node.Children = build(first, key+"-", path)
		}
	case v.IsObject():
		node.Payload.RawValue = compact(v)
		node.Children = build(v, key+"-", path)
	case v.Type == gjson.Number:
		// Keep the literal so large integers survive unrounded.
		node.Payload.RawValue = json.Number(v.Raw)
	default:
		node.Payload.RawValue = v.Value()
	}
	return node
}

func childPath(path []string, name string) []string {
	p := make([]string, len(path), len(path)+1)
	copy(p, path)
	return append(p, name)
}

func compact(v gjson.Result) string {
	return string(pretty.Ugly([]byte(v.Raw)))
}

func kindOf(v gjson.Result) models.ValueKind {
	switch v.Type {
	case gjson.False, gjson.True:
		return models.KindBool
	case gjson.Number:
		return models.KindNumber
	case gjson.String:
		return models.KindString
	case gjson.JSON:
		if v.IsArray() {
			return models.KindArray
		}
		return models.KindObject
	default:
		return models.KindNull
	}
}

// FindByKey searches the tree depth-first and returns the first node with
// the given key.
func FindByKey(tree []models.TreeNode, key string) (models.TreeNode, bool) {
	for _, node := range tree {
		if node.Key == key {
			return node, true
		}
		if found, ok := FindByKey(node.Children, key); ok {
			return found, true
		}
	}
	return models.TreeNode{}, false
}

// FindByPath searches the tree depth-first for the first node whose payload
// path equals path.
func FindByPath(tree []models.TreeNode, path []string) (models.TreeNode, bool) {
	for _, node := range tree {
		if slices.Equal(node.Payload.Path, path) {
			return node, true
		}
		if found, ok := FindByPath(node.Children, path); ok {
			return found, true
		}
	}
	return models.TreeNode{}, false
}

// Walk visits every node depth-first, parents before children.
func Walk(tree []models.TreeNode, fn func(node models.TreeNode, depth int)) {
	walk(tree, 0, fn)
}

func walk(tree []models.TreeNode, depth int, fn func(models.TreeNode, int)) {
	for _, node := range tree {
		fn(node, depth)
		walk(node.Children, depth+1, fn)
	}
}
