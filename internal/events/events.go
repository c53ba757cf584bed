// ABOUTME: String-keyed event bus between the storage core and the UI layer
// ABOUTME: Carries progress notifications and resolver payloads for input flows
package events

import (
	"log"
	"sync"
)

// Event names form the stable outer contract. The UI layer subscribes by
// name; payload shapes are documented per event.
const (
	DBImportConfirmationNeeded = "database:importConfirmationNeeded"
	DBRepairNeeded             = "database:repairNeeded"
	DBImportStart              = "database:importStart"
	DBImportProgress           = "database:importProgress"
	DBImportSuccess            = "database:importSuccess"
	DBImportError              = "database:importError"
	DBExportStart              = "database:exportStart"
	DBExportSuccess            = "database:exportSuccess"
	DBExportError              = "database:exportError"
	DBDownloadFile             = "database:downloadFile"
	DBErrorDialog              = "database:errorDialog"
	DBStatsRefreshStart        = "database:statsRefreshStart"
	DBStatsRefreshSuccess      = "database:statsRefreshSuccess"
	DBStatsRefreshError        = "database:statsRefreshError"

	FSImportOptionsNeeded = "fileStorage:importOptionsNeeded"
	FSExportConfigNeeded  = "fileStorage:exportConfigNeeded"
	FSImportStart         = "fileStorage:importStart"
	FSImportSuccess       = "fileStorage:importSuccess"
	FSImportError         = "fileStorage:importError"
	FSExportStart         = "fileStorage:exportStart"
	FSExportSuccess       = "fileStorage:exportSuccess"
	FSExportError         = "fileStorage:exportError"
	FSExportCancelled     = "fileStorage:exportCancelled"
	FSHideExportOptions   = "fileStorage:hideExportOptions"

	PromptsImportSuccess = "prompts:importSuccess"
	PromptsImportError   = "prompts:importError"

	StoragePersistentGranted     = "storage:persistentGranted"
	StoragePersistentDenied      = "storage:persistentDenied"
	StoragePersistentUnsupported = "storage:persistentUnsupported"
	StoragePersistentError       = "storage:persistentError"
	StorageStatsRefreshNeeded    = "storage:statsRefreshNeeded"
)

// Payload is the free-form event payload. Events that need an answer carry
// a Resolve callback under "resolve"; the subscriber calls it exactly once.
type Payload map[string]any

// Handler consumes events for one name.
type Handler func(Payload)

// Bus is a minimal synchronous publish/subscribe surface.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// On registers a handler for an event name.
func (b *Bus) On(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit delivers the payload to every handler registered for name. Handlers
// run synchronously in registration order; a panicking handler is contained.
func (b *Bus) Emit(name string, payload Payload) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Events] handler for %s panicked: %v", name, r)
				}
			}()
			h(payload)
		}()
	}
}

// Ask emits an event whose payload carries a resolver, then blocks until the
// subscriber answers. With no subscriber the fallback is returned at once.
func (b *Bus) Ask(name string, payload Payload, fallback any) any {
	b.mu.RLock()
	n := len(b.handlers[name])
	b.mu.RUnlock()
	if n == 0 {
		return fallback
	}

	answer := make(chan any, 1)
	var once sync.Once
	payload["resolve"] = func(v any) {
		once.Do(func() { answer <- v })
	}
	b.Emit(name, payload)
	return <-answer
}
