package texmath

// Cache stores compiled markup keyed by expression and mode.
type Cache interface {
	Get(raw string, mode Mode) (string, bool)
	Put(raw string, mode Mode, markup string)
}

type cachedCompiler struct {
	next  Compiler
	cache Cache
}

// Cached wraps c so successful compiles are served from cache. Fallback
// fragments are not stored.
func Cached(c Compiler, cache Cache) Compiler {
	if cache == nil {
		return c
	}
	return &cachedCompiler{next: c, cache: cache}
}

func (c *cachedCompiler) Compile(raw string, mode Mode) Fragment {
	if markup, ok := c.cache.Get(raw, mode); ok {
		return Fragment{Raw: raw, Mode: mode, Markup: markup}
	}
	frag := c.next.Compile(raw, mode)
	if !frag.Fallback {
		c.cache.Put(raw, mode, frag.Markup)
	}
	return frag
}
