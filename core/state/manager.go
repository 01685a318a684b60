package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bullseye/core/types"
	"bullseye/storage"
)

// Manager provides keccak-keyed, RLP-encoded access to the node's record
// state. All writes land in an in-memory overlay first; Commit flushes the
// overlay to the backing database and Discard drops it, giving each operation
// all-or-nothing visibility.
//
// Manager is not safe for concurrent use; the node serialises operations.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
}

var accountPrefix = []byte("goal-account:")

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if data, ok := m.overlay[string(key)]; ok {
		return data, true, nil
	}
	data, err := m.db.Get(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) put(key, value []byte) {
	m.overlay[string(key)] = append([]byte(nil), value...)
}

// Commit flushes the overlay to the backing database as one atomic batch; a
// failed commit leaves the database untouched. The overlay is cleared on
// success so the manager can be reused.
func (m *Manager) Commit() error {
	if len(m.overlay) == 0 {
		return nil
	}
	if err := m.db.WriteBatch(m.overlay); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Discard drops every uncommitted write, rolling the manager back to the last
// committed state.
func (m *Manager) Discard() {
	m.overlay = make(map[string][]byte)
}

type storedAccount struct {
	Nonce   uint64
	Balance []byte
}

// GetAccount loads the ledger account for an address, returning a zero-value
// account when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if !ok {
		return account.EnsureDefaults(), nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account.Nonce = stored.Nonce
	account.EnsureDefaults()
	account.Balance.SetBytes(stored.Balance)
	return account, nil
}

// PutAccount persists the ledger account for an address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	account = account.Clone()
	if account.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	stored := storedAccount{
		Nonce:   account.Nonce,
		Balance: account.Balance.Bytes(),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	m.put(accountKey(addr), encoded)
	return nil
}
