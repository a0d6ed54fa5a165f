package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
)

// Storage keys of the two mutually exclusive slots.
const (
	UserSlotKey  = "@user_data"
	GuestSlotKey = "@guest_user"
)

func slotKeys(user *models.AppUser) (key, otherKey string) {
	if user.IsGuest {
		return GuestSlotKey, UserSlotKey
	}
	return UserSlotKey, GuestSlotKey
}

func logStorageError(err *StorageError) {
	logger.Log.Errorw("session storage failure",
		"op", err.Op,
		"key", err.Key,
		"error", err.Err,
	)
}

// saveUser writes user into its slot and clears the other one. Failures are
// logged; the in-memory session stays authoritative.
func (m *Manager) saveUser(ctx context.Context, user *models.AppUser) {
	key, otherKey := slotKeys(user)

	data, err := json.Marshal(user)
	if err != nil {
		logStorageError(&StorageError{Op: "encode", Key: key, Err: err})
		return
	}

	if err := m.store.Set(ctx, key, string(data)); err != nil {
		logStorageError(&StorageError{Op: "set", Key: key, Err: err})
	}
	if err := m.store.Remove(ctx, otherKey); err != nil {
		logStorageError(&StorageError{Op: "remove", Key: otherKey, Err: err})
	}
}

func (m *Manager) clearSlots(ctx context.Context) {
	for _, key := range []string{UserSlotKey, GuestSlotKey} {
		if err := m.store.Remove(ctx, key); err != nil {
			logStorageError(&StorageError{Op: "remove", Key: key, Err: err})
		}
	}
}

// loadSlots returns the authenticated record, else the guest record, else nil.
func (m *Manager) loadSlots(ctx context.Context) *models.AppUser {
	for _, key := range []string{UserSlotKey, GuestSlotKey} {
		user, err := m.readSlot(ctx, key)
		if err != nil {
			logStorageError(&StorageError{Op: "get", Key: key, Err: err})
			continue
		}
		if user != nil {
			return user
		}
	}
	return nil
}

func (m *Manager) readSlot(ctx context.Context, key string) (*models.AppUser, error) {
	value, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	user := &models.AppUser{}
	if err := json.Unmarshal([]byte(value), user); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidRecord, err)
	}
	if user.UID == "" || user.IsGuest != (key == GuestSlotKey) {
		return nil, models.ErrInvalidRecord
	}

	return user, nil
}
