package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
)

// DefaultVisible is how long a notification stays shown.
const DefaultVisible = 3 * time.Second

// Toast holds at most one visible notification. A newer one replaces the current,
// and each hides itself after the visible period unless already replaced.
type Toast struct {
	visible time.Duration
	logger  port.Logger
	now     func() time.Time

	mu      sync.Mutex
	current entity.Notification
}

var _ port.Notifier = (*Toast)(nil)

func NewToast(visible time.Duration, logger port.Logger) *Toast {
	if visible <= 0 {
		visible = DefaultVisible
	}
	return &Toast{visible: visible, logger: logger, now: time.Now}
}

// Notify shows message immediately.
func (t *Toast) Notify(message string, kind entity.NotificationKind) {
	n := entity.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		Visible:   true,
		CreatedAt: t.now(),
	}
	t.mu.Lock()
	t.current = n
	t.mu.Unlock()

	if kind == entity.NotifyError {
		t.logger.Warn("Notification", "id", n.ID, "message", message)
	} else {
		t.logger.Info("Notification", "id", n.ID, "message", message, "kind", string(kind))
	}
	time.AfterFunc(t.visible, func() { t.hide(n.ID) })
}

func (t *Toast) hide(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.ID == id {
		t.current.Visible = false
	}
}

// Current returns the latest notification; Visible is false once it has expired.
func (t *Toast) Current() (entity.Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.current.ID != ""
}
