package cerca

import (
	"context"

	"github.com/soundprediction/cerca/pkg/types"
)

// Retrieve produces a ranked, deduplicated context bundle for the parsed
// query. An empty query text returns an empty, non-degraded bundle.
func (c *Client) Retrieve(ctx context.Context, query types.Query) (*types.ContextBundle, error) {
	return c.engine.Retrieve(ctx, query)
}
