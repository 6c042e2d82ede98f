package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/freeoffice/fieldcam/internal/models"
)

const (
	TopicChanged = "slot:changed"
	TopicFailed  = "slot:failed"
)

var (
	ErrBusy        = errors.New("slot upload already in progress")
	ErrUnknownSlot = errors.New("unknown slot")
	ErrClosed      = errors.New("slot manager closed")
	ErrDiscarded   = errors.New("slot was cleared while uploading")
)

// Uploader sends a file to the remote store and returns its server path
type Uploader interface {
	Upload(ctx context.Context, file models.File, subDirectory string) (string, error)
}

// Slot is the public state of one named photo position
type Slot struct {
	Name       string
	Preview    Reference
	ServerPath string
	Uploading  bool
}

type slotState struct {
	Slot
	// superseded is the preview replaced by an upload still in flight
	superseded Reference
	gen        uint64
	// inFlight stays set until the network request returns, even when the
	// slot was cleared meanwhile
	inFlight bool
}

// Manager owns the photo slots of one form
type Manager struct {
	SubDirectory string

	uploader Uploader
	previews Previews
	bus      evbus.Bus

	mu     sync.Mutex
	names  []string
	slots  map[string]*slotState
	closed bool
}

// NewManager creates a manager for the named slots. Uploads are tagged
// with subDirectory.
func NewManager(uploader Uploader, previews Previews, subDirectory string, names ...string) *Manager {
	m := &Manager{
		SubDirectory: subDirectory,
		uploader:     uploader,
		previews:     previews,
		bus:          evbus.New(),
		slots:        make(map[string]*slotState, len(names)),
	}
	for _, name := range names {
		if _, exists := m.slots[name]; exists {
			continue
		}
		m.names = append(m.names, name)
		m.slots[name] = &slotState{Slot: Slot{Name: name}}
	}
	return m
}

// Subscribe registers fn for a topic. TopicChanged handlers take a Slot,
// TopicFailed handlers take a Slot and an error.
func (m *Manager) Subscribe(topic string, fn interface{}) error {
	return m.bus.Subscribe(topic, fn)
}

// AssignCapturedFile shows preview in the slot at once and uploads file
func (m *Manager) AssignCapturedFile(ctx context.Context, name string, file models.File, preview Reference) (string, error) {
	return m.assign(ctx, name, file, func() Reference { return preview })
}

// Upload creates a local preview for file and uploads it into the slot
func (m *Manager) Upload(ctx context.Context, name string, file models.File) (string, error) {
	return m.assign(ctx, name, file, func() Reference { return m.previews.Create(file) })
}

func (m *Manager) assign(ctx context.Context, name string, file models.File, preview func() Reference) (string, error) {
	m.mu.Lock()
	st, err := m.lookup(name)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	if st.Uploading || st.inFlight {
		m.mu.Unlock()
		return "", fmt.Errorf("failed to upload into %s: %w", name, ErrBusy)
	}

	ref := preview()
	st.superseded = st.Preview
	st.Preview = ref
	st.ServerPath = ""
	st.Uploading = true
	st.inFlight = true
	st.gen++
	gen := st.gen
	changed := st.Slot
	m.mu.Unlock()

	m.bus.Publish(TopicChanged, changed)
	slog.Info("Uploading slot", "slot", name, "file", file.Name, "bytes", len(file.Data), "sub_directory", m.SubDirectory)

	path, uploadErr := m.uploader.Upload(ctx, file, m.SubDirectory)

	m.mu.Lock()
	st.inFlight = false
	if m.closed || st.gen != gen {
		// Remove, Reset or Close already released every reference of this attempt
		m.mu.Unlock()
		slog.Debug("Discarding stale upload result", "slot", name)
		if uploadErr != nil {
			return "", uploadErr
		}
		return "", fmt.Errorf("failed to assign %s: %w", name, ErrDiscarded)
	}

	if uploadErr != nil {
		m.revoke(st.Preview)
		if st.superseded != st.Preview {
			m.revoke(st.superseded)
		}
		st.Slot = Slot{Name: name}
		st.superseded = ""
		changed = st.Slot
		m.mu.Unlock()

		slog.Error("Slot upload failed", "slot", name, "error", uploadErr)
		m.bus.Publish(TopicChanged, changed)
		m.bus.Publish(TopicFailed, changed, uploadErr)
		return "", uploadErr
	}

	if st.superseded != st.Preview {
		m.revoke(st.superseded)
	}
	st.superseded = ""
	st.ServerPath = path
	st.Uploading = false
	changed = st.Slot
	m.mu.Unlock()

	slog.Info("Slot uploaded", "slot", name, "path", path)
	m.bus.Publish(TopicChanged, changed)
	return path, nil
}

// Remove clears the slot and revokes its preview, cancelling interest in
// any upload still in flight. The slot accepts a new file only once that
// request has returned.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	st, err := m.lookup(name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.clear(st)
	changed := st.Slot
	m.mu.Unlock()

	m.bus.Publish(TopicChanged, changed)
	return nil
}

// Reset clears every slot
func (m *Manager) Reset() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := make([]Slot, 0, len(m.names))
	for _, name := range m.names {
		st := m.slots[name]
		m.clear(st)
		changed = append(changed, st.Slot)
	}
	m.mu.Unlock()

	for _, s := range changed {
		m.bus.Publish(TopicChanged, s)
	}
}

// Close revokes every outstanding reference. The manager rejects further
// use.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, name := range m.names {
		m.clear(m.slots[name])
	}
	m.closed = true
}

// Slot returns the state of one slot
func (m *Manager) Slot(name string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.slots[name]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	return st.Slot, nil
}

// Slots returns every slot in declaration order
func (m *Manager) Slots() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Slot, 0, len(m.names))
	for _, name := range m.names {
		result = append(result, m.slots[name].Slot)
	}
	return result
}

// Paths returns the server path of every slot, empty when not uploaded
func (m *Manager) Paths() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]string, len(m.names))
	for _, name := range m.names {
		result[name] = m.slots[name].ServerPath
	}
	return result
}

// Uploading reports whether any slot has an upload in flight
func (m *Manager) Uploading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.slots {
		if st.Uploading || st.inFlight {
			return true
		}
	}
	return false
}

// lookup must be called with mu held
func (m *Manager) lookup(name string) (*slotState, error) {
	if m.closed {
		return nil, ErrClosed
	}
	st, ok := m.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	return st, nil
}

// clear must be called with mu held
func (m *Manager) clear(st *slotState) {
	m.revoke(st.Preview)
	if st.superseded != st.Preview {
		m.revoke(st.superseded)
	}
	st.Slot = Slot{Name: st.Name}
	st.superseded = ""
	st.gen++
}

func (m *Manager) revoke(ref Reference) {
	if ref == "" || !ref.IsLocal() {
		return
	}
	m.previews.Revoke(ref)
}
