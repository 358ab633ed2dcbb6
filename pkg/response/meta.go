package response

import "context"

type metaContextKey struct{}

// Meta is a mutable per-request annotation map. It travels on the request
// context so layers below the handler can enrich the response envelope.
type Meta map[string]interface{}

// WithMeta returns a context carrying the given metadata map.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFrom returns the metadata map carried by the context, or nil.
func MetaFrom(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaContextKey{}).(Meta)
	return meta
}

// SetCacheHit marks whether the payload was served from cache.
func SetCacheHit(ctx context.Context, hit bool) {
	if meta := MetaFrom(ctx); meta != nil {
		meta["cache_hit"] = hit
	}
}
