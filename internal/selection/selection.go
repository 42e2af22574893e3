// Package selection holds the provider/quality choice for the current
// content and the fallback sequence for the best-effort provider.
package selection

import (
	"fmt"

	"github.com/mnflix/mnflix-cli/internal/catalog"
)

// State is the machine's top-level state
type State int

const (
	// Unselected means no catalog has been loaded yet
	Unselected State = iota
	// Selected means a provider and quality are chosen
	Selected
	// Exhausted is terminal: the fallback provider's candidates all
	// failed. Only a manual retry or provider switch leaves it.
	Exhausted
)

// ExhaustedError reports that every candidate of the fallback provider
// failed playback.
type ExhaustedError struct {
	Provider   string
	Candidates int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidates of provider %q exhausted", e.Candidates, e.Provider)
}

// Snapshot captures the machine's selection for caching
type Snapshot struct {
	Provider      string
	Quality       catalog.Quality
	FallbackIndex int
	FallbackMode  bool
}

// Machine tracks the active provider/quality selection. Not safe for
// concurrent use; the owning session serializes access.
type Machine struct {
	state            State
	catalog          *catalog.ProviderCatalog
	provider         string
	quality          catalog.Quality
	fallbackIndex    int
	fallbackMode     bool
	fallbackProvider string

	// manualHold suppresses the automatic fallback advance between a
	// manual selection and the commit that applies it.
	manualHold bool

	// failedURLs is display-only memory of candidates that failed;
	// it never drives control decisions.
	failedURLs []string
}

// NewMachine creates a machine with the named fallback-eligible
// provider.
func NewMachine(fallbackProvider string) *Machine {
	return &Machine{fallbackProvider: fallbackProvider}
}

// State returns the machine's current state
func (m *Machine) State() State { return m.state }

// Provider returns the selected provider name, "" when unselected
func (m *Machine) Provider() string { return m.provider }

// Quality returns the selected quality
func (m *Machine) Quality() catalog.Quality { return m.quality }

// FallbackMode reports whether automatic candidate fallback applies to
// the current provider.
func (m *Machine) FallbackMode() bool { return m.fallbackMode }

// FallbackIndex returns the current candidate index within the
// fallback provider's stream list.
func (m *Machine) FallbackIndex() int { return m.fallbackIndex }

// FailedURLs returns the URLs that failed since the last reset, for
// display only.
func (m *Machine) FailedURLs() []string { return m.failedURLs }

// LoadCatalog installs a freshly fetched catalog and picks defaults:
// the sticky provider from a previous content item when it exists in
// this catalog, otherwise the first group, with that group's first
// quality.
func (m *Machine) LoadCatalog(cat *catalog.ProviderCatalog, stickyProvider string) error {
	if cat.Empty() {
		return fmt.Errorf("cannot load empty catalog")
	}

	m.catalog = cat
	m.failedURLs = nil
	m.manualHold = false

	group := cat.Group(stickyProvider)
	if group == nil {
		group = &cat.Groups[0]
	}
	m.selectGroup(group)
	return nil
}

// SelectProvider applies a manual provider choice. Auto-picks the
// group's first quality and suppresses the automatic fallback advance
// until the selection has been committed.
func (m *Machine) SelectProvider(name string) error {
	if m.catalog == nil {
		return fmt.Errorf("no catalog loaded")
	}
	group := m.catalog.Group(name)
	if group == nil {
		return fmt.Errorf("provider %q not in catalog", name)
	}
	m.selectGroup(group)
	m.manualHold = true
	return nil
}

// SelectQuality applies a manual quality choice within the current
// provider. Switching quality restarts any fallback sequence.
func (m *Machine) SelectQuality(q catalog.Quality) error {
	if m.state == Unselected {
		return fmt.Errorf("no provider selected")
	}
	group := m.currentGroup()
	if group == nil || !group.HasQuality(q) {
		return fmt.Errorf("quality %q not available on provider %q", q, m.provider)
	}
	m.quality = q
	m.fallbackIndex = 0
	m.state = Selected
	return nil
}

// AcknowledgeCommit clears the manual-selection hold once the commit
// for that selection has been issued, re-arming automatic fallback.
func (m *Machine) AcknowledgeCommit() {
	m.manualHold = false
}

// OnPlaybackFailure advances the fallback sequence after an engine
// playback error. Returns the next candidate to try, an
// *ExhaustedError when none remain, or (nil, nil) when automatic
// fallback does not apply and the failure should be surfaced as-is.
func (m *Machine) OnPlaybackFailure() (*catalog.StreamCandidate, error) {
	if m.state == Exhausted {
		group := m.currentGroup()
		count := 0
		if group != nil {
			count = len(group.Streams)
		}
		return nil, &ExhaustedError{Provider: m.provider, Candidates: count}
	}
	if !m.fallbackMode || m.manualHold || m.state != Selected {
		return nil, nil
	}

	group := m.currentGroup()
	if group == nil {
		return nil, nil
	}

	if current := NextCandidate(group, m.fallbackIndex); current != nil {
		m.failedURLs = append(m.failedURLs, current.URL)
	}

	m.fallbackIndex++
	next := NextCandidate(group, m.fallbackIndex)
	if next == nil {
		m.state = Exhausted
		return nil, &ExhaustedError{Provider: m.provider, Candidates: len(group.Streams)}
	}
	return next, nil
}

// ResetFallback restarts the fallback sequence from the first
// candidate and clears the failed-URL display memory. Invoked by the
// user's Retry action, so it counts as a manual selection.
func (m *Machine) ResetFallback() {
	if m.state == Unselected {
		return
	}
	m.fallbackIndex = 0
	m.failedURLs = nil
	m.manualHold = true
	m.state = Selected
}

// Candidate returns the stream the current selection points at, or
// nil when nothing is selectable.
func (m *Machine) Candidate() *catalog.StreamCandidate {
	group := m.currentGroup()
	if group == nil || len(group.Streams) == 0 {
		return nil
	}
	if m.fallbackMode {
		return NextCandidate(group, m.fallbackIndex)
	}
	if c := group.FirstWithQuality(m.quality); c != nil {
		return c
	}
	return &group.Streams[0]
}

// Snapshot captures the selection for the content cache
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Provider:      m.provider,
		Quality:       m.quality,
		FallbackIndex: m.fallbackIndex,
		FallbackMode:  m.fallbackMode,
	}
}

// Restore re-applies a cached selection against a cached catalog
func (m *Machine) Restore(cat *catalog.ProviderCatalog, snap Snapshot) error {
	if cat.Empty() || cat.Group(snap.Provider) == nil {
		return fmt.Errorf("cached selection does not match catalog")
	}
	m.catalog = cat
	m.provider = snap.Provider
	m.quality = snap.Quality
	m.fallbackIndex = snap.FallbackIndex
	m.fallbackMode = snap.FallbackMode
	m.state = Selected
	m.manualHold = false
	m.failedURLs = nil
	return nil
}

func (m *Machine) currentGroup() *catalog.ProviderGroup {
	if m.catalog == nil {
		return nil
	}
	return m.catalog.Group(m.provider)
}

func (m *Machine) selectGroup(group *catalog.ProviderGroup) {
	m.provider = group.Provider
	if len(group.Qualities) > 0 {
		m.quality = group.Qualities[0]
	} else {
		m.quality = catalog.QualityUnknown
	}
	m.fallbackIndex = 0
	m.fallbackMode = group.Provider == m.fallbackProvider
	m.state = Selected
}

// NextCandidate returns the candidate at index within the group, or
// nil when the index is past the end. Stateless; pairs with the
// machine's fallback index.
func NextCandidate(group *catalog.ProviderGroup, index int) *catalog.StreamCandidate {
	if group == nil || index < 0 || index >= len(group.Streams) {
		return nil
	}
	return &group.Streams[index]
}
