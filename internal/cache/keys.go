package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobSnapshotKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func SubmitQuotaKey(userID uuid.UUID) string {
	return fmt.Sprintf("quota:generate:%s", userID)
}
