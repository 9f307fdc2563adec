package types

// RequestPreview holds the few request body fields the gateway inspects
// before forwarding. The body itself is relayed to the backend verbatim;
// decoding into this struct never strips unknown fields.
type RequestPreview struct {
	// Model is the model name the caller requested. May be empty for
	// clients that rely on the backend's default model.
	Model string `json:"model"`

	// Stream indicates the caller asked for a streamed (SSE) response.
	Stream bool `json:"stream"`
}
