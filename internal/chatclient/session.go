package chatclient

import (
	"github.com/google/uuid"

	"tabletalk-web/internal/web"
)

// SessionID returns the session id persisted in storage, creating one on
// first use. Without storage every call gets the shared fallback id.
func SessionID(storage Storage) (string, error) {
	if storage == nil {
		return web.FallbackSessionID, nil
	}

	existing, ok, err := storage.Get(web.SessionStorageKey)
	if err != nil {
		return "", err
	}
	if ok && existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	if err := storage.Set(web.SessionStorageKey, id); err != nil {
		return "", err
	}
	return id, nil
}
