// pkg/wsus/snapshot.go - in-memory catalog snapshot and its YAML document form.
//
// A snapshot is the immutable input for one report run. Collectors export the
// catalog state to a YAML document; the engine loads it and serves every
// Catalog call from memory. Decline is the one mutating action and only
// touches the in-memory copy, mirroring the decline issued against the live
// service.

package wsus

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// StateRecord is one (update, group) installation-state observation in the
// snapshot document.
type StateRecord struct {
	UpdateID string            `yaml:"update_id" json:"update_id"`
	GroupID  string            `yaml:"group_id" json:"group_id"`
	State    InstallationState `yaml:"state" json:"state"`
}

// Document is the serialized form of a catalog snapshot.
type Document struct {
	TakenAt    time.Time                       `yaml:"taken_at"`
	ServerName string                          `yaml:"server_name,omitempty"`
	Updates    []Update                        `yaml:"updates"`
	Approvals  []Approval                      `yaml:"approvals"`
	Groups     []Group                         `yaml:"groups"`
	Members    map[string][]Endpoint           `yaml:"members"`   // group ID -> direct members
	Summaries  map[string]*InstallationSummary `yaml:"summaries"` // endpoint name -> counts, absent = no status
	States     []StateRecord                   `yaml:"states"`
	SyncEvents []SyncEvent                     `yaml:"sync_events"`
}

// Snapshot implements Catalog over a Document held in memory.
type Snapshot struct {
	mu  sync.RWMutex
	doc Document

	approvalsByUpdate map[string][]Approval
	statesByPair      map[string]InstallationState
	updateIndex       map[string]int
}

// NewSnapshot indexes a document into a servable snapshot. Update and group
// identifiers must be well-formed GUIDs.
func NewSnapshot(doc Document) (*Snapshot, error) {
	s := &Snapshot{
		doc:               doc,
		approvalsByUpdate: make(map[string][]Approval),
		statesByPair:      make(map[string]InstallationState),
		updateIndex:       make(map[string]int),
	}

	for i, u := range doc.Updates {
		if err := ValidateID(u.ID); err != nil {
			return nil, fmt.Errorf("update %q: %w", u.Title, err)
		}
		if _, dup := s.updateIndex[u.ID]; dup {
			return nil, fmt.Errorf("duplicate update id %s", u.ID)
		}
		s.updateIndex[u.ID] = i
	}
	for _, g := range doc.Groups {
		if err := ValidateID(g.ID); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
	}
	for _, a := range doc.Approvals {
		if _, ok := s.updateIndex[a.UpdateID]; !ok {
			return nil, fmt.Errorf("approval references unknown update %s", a.UpdateID)
		}
		s.approvalsByUpdate[a.UpdateID] = append(s.approvalsByUpdate[a.UpdateID], a)
	}
	// Histories are served oldest first.
	for _, history := range s.approvalsByUpdate {
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].CreationDate.Before(history[j].CreationDate)
		})
	}
	for _, st := range doc.States {
		s.statesByPair[st.UpdateID+"/"+st.GroupID] = st.State
	}

	return s, nil
}

// LoadSnapshot reads and indexes a snapshot document from a YAML file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	return NewSnapshot(doc)
}

// Save writes the snapshot's current document state back to a YAML file.
func (s *Snapshot) Save(path string) error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("serializing snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// TakenAt returns the collection timestamp recorded in the document.
func (s *Snapshot) TakenAt() time.Time {
	return s.doc.TakenAt
}

// ServerName returns the name of the server the snapshot was collected from.
func (s *Snapshot) ServerName() string {
	return s.doc.ServerName
}

// ListUpdates implements Catalog.
func (s *Snapshot) ListUpdates() ([]Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Update, len(s.doc.Updates))
	copy(out, s.doc.Updates)
	return out, nil
}

// ListApprovals implements Catalog.
func (s *Snapshot) ListApprovals(updateID string) ([]Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.updateIndex[updateID]; !ok {
		return nil, fmt.Errorf("unknown update %s", updateID)
	}
	history := s.approvalsByUpdate[updateID]
	out := make([]Approval, len(history))
	copy(out, history)
	return out, nil
}

// ListGroups implements Catalog.
func (s *Snapshot) ListGroups() ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Group, len(s.doc.Groups))
	copy(out, s.doc.Groups)
	return out, nil
}

// ListEndpoints implements Catalog.
func (s *Snapshot) ListEndpoints(group Group) ([]Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.doc.Members[group.ID]
	out := make([]Endpoint, len(members))
	copy(out, members)
	return out, nil
}

// GetInstallationSummary implements Catalog. A nil summary with a nil error
// means the endpoint has not reported status.
func (s *Snapshot) GetInstallationSummary(endpoint Endpoint) (*InstallationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.doc.Summaries[endpoint.Name]
	if !ok || sum == nil {
		return nil, nil
	}
	out := *sum
	return &out, nil
}

// GetInstallationState implements Catalog. Pairs the snapshot never observed
// resolve to Unknown.
func (s *Snapshot) GetInstallationState(update Update, group Group) (InstallationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.statesByPair[update.ID+"/"+group.ID]; ok {
		return state, nil
	}
	return StateUnknown, nil
}

// GetLastSyncEvent implements Catalog, returning the event with the latest
// start time, or nil if the catalog has never synchronized.
func (s *Snapshot) GetLastSyncEvent() (*SyncEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.doc.SyncEvents) == 0 {
		return nil, nil
	}

	last := s.doc.SyncEvents[0]
	for _, ev := range s.doc.SyncEvents[1:] {
		if ev.StartTime.After(last.StartTime) {
			last = ev
		}
	}
	return &last, nil
}

// Decline implements Catalog against the in-memory copy.
func (s *Snapshot) Decline(updateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.updateIndex[updateID]
	if !ok {
		return fmt.Errorf("unknown update %s", updateID)
	}
	s.doc.Updates[i].IsDeclined = true
	return nil
}
