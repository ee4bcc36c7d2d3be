package instance

import "github.com/angelmondragon/storefront-backend/pkg/env"

// ID names this process in logs: STOREFRONT_INSTANCE_ID, then the platform's
// DYNO, then "local".
func ID() string {
	return env.Get("STOREFRONT_INSTANCE_ID", env.Get("DYNO", "local"))
}
