package instance

import "github.com/angelmondragon/tokenizr-backend/pkg/env"

// ID names the running process for logs: WORKER_ID, then the platform's DYNO,
// then fallback.
func ID(fallback string) string {
	return env.First(fallback, "WORKER_ID", "DYNO")
}
