package anthropic

// BuildCachedSystemBlocks returns text as a single system block with a
// cache breakpoint. ttl is "5m" or "1h"; empty uses the API default.
// Requests in an enrichment run share the same system prompt, so every call
// after the first reads it from the prompt cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
