package kernel

import "github.com/google/uuid"

func UuidV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustUuidV7 falls back to a random v4 id when the v7 clock source fails.
func MustUuidV7() string {
	if id, err := UuidV7(); err == nil {
		return id
	}
	return uuid.NewString()
}
