package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allendavis-developer/pricebook/pkg/models"
)

func strptr(s string) *string {
	return &s
}

func TestBuildTree(t *testing.T) {
	t.Run("nests children under their parents", func(t *testing.T) {
		roots := buildTree([]models.Category{
			{ID: "root", Name: models.RootCategoryName},
			{ID: "phones", Name: "Mobile Phones", ParentID: strptr("root")},
			{ID: "consoles", Name: "Consoles", ParentID: strptr("root")},
			{ID: "handhelds", Name: "Handhelds", ParentID: strptr("consoles")},
		})

		require.Len(t, roots, 1)
		root := roots[0]
		assert.Equal(t, models.RootCategoryName, root.Name)
		require.Len(t, root.Children, 2)

		var consoles *models.CategoryNode
		for _, child := range root.Children {
			if child.Name == "Consoles" {
				consoles = child
			}
		}
		require.NotNil(t, consoles)
		require.Len(t, consoles.Children, 1)
		assert.Equal(t, "Handhelds", consoles.Children[0].Name)
	})

	t.Run("self-referencing parent is a root", func(t *testing.T) {
		roots := buildTree([]models.Category{
			{ID: "root", Name: models.RootCategoryName, ParentID: strptr("root")},
		})

		require.Len(t, roots, 1)
		assert.Empty(t, roots[0].Children)
	})

	t.Run("orphans surface as extra roots", func(t *testing.T) {
		roots := buildTree([]models.Category{
			{ID: "root", Name: models.RootCategoryName},
			{ID: "orphan", Name: "Orphan", ParentID: strptr("gone")},
		})

		assert.Len(t, roots, 2)
	})

	t.Run("empty input yields no roots", func(t *testing.T) {
		assert.Empty(t, buildTree(nil))
	})
}
