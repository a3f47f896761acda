package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateCallID generates the opaque call identifier shared by both
// parties. Assigned once per call attempt; never reused on reconnection.
func GenerateCallID() string {
	return fmt.Sprintf("call_%s", uuid.NewString())
}

// GenerateScopeID generates the distinguishing identifier for one signaling
// subscription attempt. Unique per attempt, not just per call, so a prior
// subscription still tearing down cannot collide.
func GenerateScopeID() string {
	return fmt.Sprintf("sub_%s", uuid.NewString())
}
