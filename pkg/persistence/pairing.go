package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const pairingPrefix = "pairing/"

// PairedDevice is a peripheral this host has connected to before.
type PairedDevice struct {
	// ID is the transport-level device identifier.
	ID string `json:"id"`

	// Name is the advertised local name at last sighting.
	Name string `json:"name,omitempty"`

	// RSSI is the signal strength at last sighting.
	RSSI int `json:"rssi,omitempty"`

	ManufacturerData []byte   `json:"manufacturer_data,omitempty"`
	ServiceUUIDs     []string `json:"service_uuids,omitempty"`

	// LastConnected is updated on every connect and disconnect.
	LastConnected time.Time `json:"last_connected"`

	// ConnectionCount is incremented on every successful connect.
	ConnectionCount int `json:"connection_count"`

	IsFavorite bool `json:"is_favorite,omitempty"`

	// OwnerUserID is the user that claimed the device from this host.
	OwnerUserID string `json:"owner_user_id,omitempty"`
}

// PairingStore persists PairedDevice records in a KV.
type PairingStore struct {
	kv KV
}

// NewPairingStore creates a pairing store on top of kv.
func NewPairingStore(kv KV) *PairingStore {
	return &PairingStore{kv: kv}
}

func pairingKey(deviceID string) string {
	return pairingPrefix + deviceID
}

// Lookup returns the record for deviceID, or nil if there is none.
func (s *PairingStore) Lookup(deviceID string) (*PairedDevice, error) {
	data, err := s.kv.Get(pairingKey(deviceID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d := &PairedDevice{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode pairing %s: %w", deviceID, err)
	}
	return d, nil
}

// all returns every record, skipping ones that fail to decode.
func (s *PairingStore) all() ([]PairedDevice, error) {
	keys, err := s.kv.Keys(pairingPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]PairedDevice, 0, len(keys))
	for _, k := range keys {
		d, err := s.Lookup(strings.TrimPrefix(k, pairingPrefix))
		if err != nil || d == nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// Get returns the devices owned by userID, most recently connected first.
// An empty userID returns every record.
func (s *PairingStore) Get(userID string) ([]PairedDevice, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, d := range all {
		if userID == "" || d.OwnerUserID == userID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastConnected.After(out[j].LastConnected)
	})
	return out, nil
}

// Put creates or replaces the record for d.ID.
func (s *PairingStore) Put(d PairedDevice) error {
	if d.ID == "" {
		return errors.New("persistence: paired device has no ID")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.kv.Set(pairingKey(d.ID), data)
}

// Remove deletes the record for deviceID.
func (s *PairingStore) Remove(deviceID string) error {
	return s.kv.Delete(pairingKey(deviceID))
}

// GetLastConnected returns the record with the latest LastConnected, or nil
// if the store is empty.
func (s *PairingStore) GetLastConnected() (*PairedDevice, error) {
	all, err := s.Get("")
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}
