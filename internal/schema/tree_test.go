package schema

import (
	"encoding/json"
	"testing"

	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func findLabel(t *testing.T, nodes []models.TreeNode, label string) models.TreeNode {
	t.Helper()
	for _, n := range nodes {
		if n.Label == label {
			return n
		}
	}
	t.Fatalf("no node labelled %q", label)
	return models.TreeNode{}
}

func TestBuild_Arrays(t *testing.T) {
	nodes := BuildBytes([]byte(`{
		"emptyArr": [],
		"doubleArr": [[{"nested": "val"}]],
		"objArr": [{"foo": 1, "bar": 2}, {"foo": 3}],
		"primArr": [42, 43, 44]
	}`))
	require.Len(t, nodes, 4)

	empty := findLabel(t, nodes, "emptyArr [ ]")
	assert.Equal(t, "0", empty.Key)
	assert.Empty(t, empty.Children)
	assert.Equal(t, "[]", empty.Payload.RawValue)
	assert.Equal(t, []string{"emptyArr"}, empty.Payload.Path)

	double := findLabel(t, nodes, "doubleArr [ [ ] ]")
	assert.Equal(t, `[[{"nested":"val"}]]`, double.Payload.RawValue)
	assert.Equal(t, []string{"doubleArr"}, double.Payload.Path)
	require.Len(t, double.Children, 1)
	assert.Equal(t, "nested", double.Children[0].Label)
	assert.Equal(t, "1-0", double.Children[0].Key)
	assert.Equal(t, "val", double.Children[0].Payload.RawValue)
	assert.Equal(t, []string{"doubleArr", "nested"}, double.Children[0].Payload.Path)

	objArr := findLabel(t, nodes, "objArr [ ]")
	require.Len(t, objArr.Children, 2)
	assert.Equal(t, `[{"foo":1,"bar":2},{"foo":3}]`, objArr.Payload.RawValue)
	foo := findLabel(t, objArr.Children, "foo")
	assert.Equal(t, json.Number("1"), foo.Payload.RawValue)
	assert.Equal(t, []string{"objArr", "foo"}, foo.Payload.Path)
	bar := findLabel(t, objArr.Children, "bar")
	assert.Equal(t, json.Number("2"), bar.Payload.RawValue)
	assert.Equal(t, "2-1", bar.Key)

	prim := findLabel(t, nodes, "primArr [ ]")
	assert.Empty(t, prim.Children)
	assert.Equal(t, "[42,43,44]", prim.Payload.RawValue)
	assert.Equal(t, models.KindArray, prim.Payload.Kind)
	assert.Equal(t, models.KindNumber, prim.Payload.ElemKind)
}

func TestBuild_PrimitiveArrayOfStrings(t *testing.T) {
	nodes := BuildBytes([]byte(`{"value": ["123", "345"]}`))
	require.Len(t, nodes, 1)

	assert.Equal(t, "value [ ]", nodes[0].Label)
	assert.Empty(t, nodes[0].Children)
	assert.Equal(t, []string{"value"}, nodes[0].Payload.Path)
	assert.Equal(t, `["123","345"]`, nodes[0].Payload.RawValue)
}

func TestBuild_ObjectsAndPrimitives(t *testing.T) {
	nodes := BuildBytes([]byte(`{
		"nestedObj": {"inner": 100},
		"simpleStr": "hello",
		"simpleNum": 123,
		"boolVal": false,
		"nullVal": null
	}`))
	require.Len(t, nodes, 5)

	nested := findLabel(t, nodes, "nestedObj")
	assert.Equal(t, `{"inner":100}`, nested.Payload.RawValue)
	inner := findLabel(t, nested.Children, "inner")
	assert.Equal(t, json.Number("100"), inner.Payload.RawValue)
	assert.Equal(t, []string{"nestedObj", "inner"}, inner.Payload.Path)

	tests := []struct {
		label string
		value any
		kind  models.ValueKind
	}{
		{"simpleStr", "hello", models.KindString},
		{"simpleNum", json.Number("123"), models.KindNumber},
		{"boolVal", false, models.KindBool},
		{"nullVal", nil, models.KindNull},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			n := findLabel(t, nodes, tt.label)
			assert.Equal(t, tt.value, n.Payload.RawValue)
			assert.Equal(t, tt.kind, n.Payload.Kind)
			assert.Equal(t, []string{tt.label}, n.Payload.Path)
			assert.True(t, n.IsLeaf())
		})
	}
}

func TestBuild_KeepsDocumentOrder(t *testing.T) {
	nodes := BuildBytes([]byte(`{"zeta": 1, "alpha": 2, "mid": 3}`))
	require.Len(t, nodes, 3)

	assert.Equal(t, "zeta", nodes[0].Label)
	assert.Equal(t, "alpha", nodes[1].Label)
	assert.Equal(t, "mid", nodes[2].Label)
	assert.Equal(t, []string{"0", "1", "2"}, []string{nodes[0].Key, nodes[1].Key, nodes[2].Key})
}

func TestBuild_RootArrayUsesIndexNames(t *testing.T) {
	nodes := BuildBytes([]byte(`[{"id": 1}, {"id": 2}]`))
	require.Len(t, nodes, 2)

	assert.Equal(t, "0", nodes[0].Label)
	assert.Equal(t, []string{"1", "id"}, nodes[1].Children[0].Payload.Path)
}

func TestBuild_PathPrefix(t *testing.T) {
	nodes := BuildValue(map[string]any{"a": 1})
	require.Len(t, nodes, 1)
	assert.Equal(t, []string{"a"}, nodes[0].Payload.Path)

	prefixed := Build(gjson.Parse(`{"a": 1}`), "root", "data")
	require.Len(t, prefixed, 1)
	assert.Equal(t, []string{"root", "data", "a"}, prefixed[0].Payload.Path)
}

func TestBuild_DegradesGracefully(t *testing.T) {
	assert.Empty(t, BuildBytes(nil))
	assert.Empty(t, BuildBytes([]byte("null")))
	assert.Empty(t, BuildBytes([]byte(`{"broken": `)))
	assert.Empty(t, BuildBytes([]byte(`"just a string"`)))
	assert.Empty(t, BuildValue(nil))
}

func TestBuild_PathsAndKeysInvariant(t *testing.T) {
	samples := []string{
		`{"a": {"b": {"c": [1, 2]}}, "d": [{"e": {"f": "g"}}], "h": [[{"i": 1, "j": [[{"k": null}]]}]]}`,
		`[{"x": [{"y": [{"z": 1}]}]}, {"x": []}]`,
		`{"orders": [{"id": 1, "lines": [{"sku": "a", "qty": 2}]}], "meta": {"total": 10}}`,
	}

	for _, raw := range samples {
		tree := BuildBytes([]byte(raw))
		require.NotEmpty(t, tree, raw)

		seen := map[string]bool{}
		var check func(nodes []models.TreeNode, parentPath []string)
		check = func(nodes []models.TreeNode, parentPath []string) {
			for _, n := range nodes {
				assert.False(t, seen[n.Key], "duplicate key %s in %s", n.Key, raw)
				seen[n.Key] = true

				require.Len(t, n.Payload.Path, len(parentPath)+1, n.Key)
				assert.Equal(t, parentPath, n.Payload.Path[:len(parentPath)], n.Key)
				check(n.Children, n.Payload.Path)
			}
		}
		check(tree, []string{})
	}
}

func TestFindByKey(t *testing.T) {
	tree := []models.TreeNode{
		{Key: "root1", Label: "Root1", Children: []models.TreeNode{{Key: "child", Label: "Child"}}},
		{Key: "root2", Label: "Root2"},
	}

	child, ok := FindByKey(tree, "child")
	require.True(t, ok)
	assert.Equal(t, "Child", child.Label)

	root, ok := FindByKey(tree, "root2")
	require.True(t, ok)
	assert.Equal(t, "Root2", root.Label)

	_, ok = FindByKey(tree, "nonexistent")
	assert.False(t, ok)
}

func TestFindByPath(t *testing.T) {
	tree := BuildBytes([]byte(`{"meta": {"total": 10}, "items": [{"price": 2}]}`))

	n, ok := FindByPath(tree, []string{"items", "price"})
	require.True(t, ok)
	assert.Equal(t, "1-0", n.Key)

	_, ok = FindByPath(tree, []string{"items", "missing"})
	assert.False(t, ok)
}

func TestWalk(t *testing.T) {
	tree := BuildBytes([]byte(`{"a": {"b": 1}, "c": 2}`))

	var visited []string
	var depths []int
	Walk(tree, func(n models.TreeNode, depth int) {
		visited = append(visited, n.Key)
		depths = append(depths, depth)
	})

	assert.Equal(t, []string{"0", "0-0", "1"}, visited)
	assert.Equal(t, []int{0, 1, 0}, depths)
}

func TestBuild_LargeIntegersKeepTheirDigits(t *testing.T) {
	nodes := BuildBytes([]byte(`{"id": 9007199254740993, "ratio": 0.1}`))

	id := findLabel(t, nodes, "id")
	assert.Equal(t, json.Number("9007199254740993"), id.Payload.RawValue)
	assert.Equal(t, models.KindNumber, id.Payload.Kind)

	ratio := findLabel(t, nodes, "ratio")
	assert.Equal(t, json.Number("0.1"), ratio.Payload.RawValue)
}
