package policystore

import (
	"context"
	"encoding/json"
)

const (
	// KeyPolicy is the settings key for the handle manager's admission
	// policy (handle.Config), JSON-encoded.
	KeyPolicy = "policy"
	// KeyInterpose is the settings key for the interpose FD-forwarding
	// policy (config.InterposeConfig), JSON-encoded.
	KeyInterpose = "interpose"
)

// PutJSON JSON-encodes v and stores it under key.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(data))
}

// GetJSON loads key's value into v. ok is false if key was never set, in
// which case v is left untouched.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, err
	}
	return true, nil
}
