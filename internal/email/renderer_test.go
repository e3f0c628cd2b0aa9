package email

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	renderer, err := NewRenderer(RendererOptions{StoreName: "Threadcart", StoreURL: "https://shop.example", Currency: "INR"})
	require.NoError(t, err)
	return renderer
}

func TestRendererRendersEveryTemplate(t *testing.T) {
	renderer := newTestRenderer(t)
	props := map[string]any{
		"name":          "asha rao",
		"orderId":       "ord_01",
		"total":         "149.98",
		"paymentMethod": "COD",
		"status":        "Return Request Accepted",
		"items": []map[string]any{
			{"name": "Denim Jacket", "size": "M", "quantity": 2},
		},
	}

	for _, name := range Templates() {
		t.Run(string(name), func(t *testing.T) {
			rendered, err := renderer.Render(name, props)
			require.NoError(t, err)
			assert.NotEmpty(t, rendered.Subject)
			assert.Contains(t, rendered.HTML, "Asha Rao")
			if name != TemplateWelcome {
				assert.Contains(t, rendered.Subject, "ord_01")
			}
		})
	}
}

func TestRendererOrderConfirmationIncludesItemsTable(t *testing.T) {
	renderer := newTestRenderer(t)
	rendered, err := renderer.Render(TemplateOrderConfirmation, map[string]any{
		"name":          "Asha",
		"orderId":       "ord_01",
		"total":         "1499",
		"paymentMethod": "Online",
		"items":         []map[string]any{{"name": "Denim Jacket", "size": "M", "quantity": 1}},
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.HTML, "<table>")
	assert.Contains(t, rendered.HTML, "Denim Jacket")
	assert.Equal(t, "Order ord_01 confirmed", rendered.Subject)
}

func TestRendererSanitizesProps(t *testing.T) {
	renderer := newTestRenderer(t)
	rendered, err := renderer.Render(TemplateOrderShipped, map[string]any{
		"name":    "Asha",
		"orderId": "ord_01",
		"courier": `<script>alert("x")</script>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(rendered.HTML), "<script")
}

func TestRendererRejectsUnknownTemplateAndMissingProps(t *testing.T) {
	renderer := newTestRenderer(t)

	_, err := renderer.Render(TemplateName("invoice"), map[string]any{})
	assert.True(t, errors.Is(err, ErrUnknownTemplate))

	_, err = renderer.Render(TemplateReturnStatus, map[string]any{"name": "Asha", "orderId": "ord_01"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingProps))
	assert.Contains(t, err.Error(), "status")
}

func TestSplitFrontMatter(t *testing.T) {
	meta, body, err := splitFrontMatter("---\nsubject: Hello\n---\n# Body\n")
	require.NoError(t, err)
	assert.Equal(t, "Hello", meta.Subject)
	assert.Equal(t, "# Body\n", body)

	_, _, err = splitFrontMatter("# no front matter")
	assert.Error(t, err)
}
