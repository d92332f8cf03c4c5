package port

import "scheduled_payments/internal/domain/entity"

// AddressBook is the local labelled-address store.
type AddressBook interface {
	// Add returns false when the address is already present.
	Add(address, label string) (bool, error)
	Remove(address string) error
	UpdateLabel(address, label string) error
	IsKnown(address string) bool
	List() []entity.FavoriteEntry
}

// Notifier shows an ephemeral message. Fire-and-forget.
type Notifier interface {
	Notify(message string, kind entity.NotificationKind)
}
