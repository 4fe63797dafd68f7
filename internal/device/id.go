package device

import "github.com/google/uuid"

// GenerateID returns a new stable identifier for a cover group. Groups use a
// UUID rather than a slug derived from their name so MQTT object IDs survive
// a rename.
func GenerateID() string {
	return uuid.NewString()
}
