package ai

// Reframer translates one provider's wire format into the canonical
// chunk protocol. Implementations must be stateless: the orchestrator
// calls them from a worker pool.
type Reframer interface {
	// BuildPayload assembles the provider request body from the stored
	// model parameters, the conversation history, and the new prompt.
	BuildPayload(params map[string]any, history []Turn, prompt string) (map[string]any, error)

	// IsLast reports whether raw is the provider's terminal chunk.
	IsLast(raw []byte) bool

	// Delta extracts the incremental answer text from raw. Malformed
	// chunks yield the empty string; parse failures surface through
	// the Build methods instead.
	Delta(raw []byte) string

	// BuildFirst converts raw into the stream's opening chunk.
	// fallbackBot names the requested model; the provider-reported
	// name wins when present.
	BuildFirst(raw []byte, fallbackBot string, caller Caller) (Chunk, error)

	// BuildMiddle converts raw into an intermediate chunk.
	BuildMiddle(raw []byte) (Chunk, error)

	// BuildLast converts raw into the terminal chunk with token usage.
	BuildLast(raw []byte) (Chunk, error)

	// Usage extracts the token accounting from a terminal chunk.
	Usage(raw []byte) Usage
}
