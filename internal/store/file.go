package store

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"DynamicVault/internal/model"
)

type fileState struct {
	Vaults    map[string]model.Vault `json:"vaults"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// FileStore keeps all vaults in a single JSON state file.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Load reads the state file. A missing file yields no vaults.
func (s *FileStore) Load(_ context.Context) ([]model.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]model.Vault, 0, len(state.Vaults))
	for _, v := range state.Vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Admin.String() < out[j].Admin.String() })
	return out, nil
}

// Save rewrites the state file with v replacing any previous record for its admin.
func (s *FileStore) Save(_ context.Context, v model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return err
	}
	state.Vaults[v.Admin.String()] = v
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *FileStore) read() (*fileState, error) {
	state := &fileState{Vaults: make(map[string]model.Vault)}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Vaults == nil {
		state.Vaults = make(map[string]model.Vault)
	}
	return state, nil
}
