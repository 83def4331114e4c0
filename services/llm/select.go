package llm

import (
	"os"
	"strings"
)

// UseLocalModel reports whether generation is configured to run against the
// local Ollama endpoint instead of the hosted inference API. The flag is
// evaluated once at startup; there is no per-request failover between
// backends.
func UseLocalModel() bool {
	return strings.ToLower(os.Getenv("USE_LOCAL_MODEL")) == "true"
}
