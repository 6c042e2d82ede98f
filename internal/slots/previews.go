package slots

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/freeoffice/fieldcam/internal/models"
)

const localPrefix = "blob:"

// Reference is a displayable handle to preview image bytes. Local
// references are created by a registry and must be revoked, data URIs
// and remote paths are not.
type Reference string

// IsLocal reports whether the reference was created by a registry
func (r Reference) IsLocal() bool {
	return strings.HasPrefix(string(r), localPrefix)
}

// Previews creates and revokes local preview references
type Previews interface {
	Create(file models.File) Reference
	Revoke(ref Reference)
}

// PreviewRegistry keeps preview bytes in memory until they are revoked
type PreviewRegistry struct {
	mu    sync.RWMutex
	files map[Reference]models.File
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{
		files: make(map[Reference]models.File),
	}
}

func (p *PreviewRegistry) Create(file models.File) Reference {
	ref := Reference(localPrefix + uuid.NewString())
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[ref] = file
	return ref
}

func (p *PreviewRegistry) Get(ref Reference) (models.File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.files[ref]
	return f, ok
}

// Revoke releases a local reference. Unknown and non-local references are
// ignored.
func (p *PreviewRegistry) Revoke(ref Reference) {
	if !ref.IsLocal() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.files[ref]; !ok {
		slog.Warn("Revoking unknown preview reference", "reference", ref)
		return
	}
	delete(p.files, ref)
}

// Outstanding lists references that have not been revoked
func (p *PreviewRegistry) Outstanding() []Reference {
	p.mu.RLock()
	defer p.mu.RUnlock()
	refs := make([]Reference, 0, len(p.files))
	for ref := range p.files {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}
