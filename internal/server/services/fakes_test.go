package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vpetrenko/vaultd/internal/common"
	"github.com/vpetrenko/vaultd/internal/dbx"
	"github.com/vpetrenko/vaultd/internal/server/models"
	entriesrepo "github.com/vpetrenko/vaultd/internal/server/repositories/entries"
	fieldsrepo "github.com/vpetrenko/vaultd/internal/server/repositories/fields"
	filesrepo "github.com/vpetrenko/vaultd/internal/server/repositories/files"
	inboxesrepo "github.com/vpetrenko/vaultd/internal/server/repositories/inboxes"
	logsrepo "github.com/vpetrenko/vaultd/internal/server/repositories/logs"
	refreshtokensrepo "github.com/vpetrenko/vaultd/internal/server/repositories/refreshtokens"
	rightsrepo "github.com/vpetrenko/vaultd/internal/server/repositories/rights"
	sharesrepo "github.com/vpetrenko/vaultd/internal/server/repositories/shares"
	userkeysrepo "github.com/vpetrenko/vaultd/internal/server/repositories/userkeys"
	usersrepo "github.com/vpetrenko/vaultd/internal/server/repositories/users"
	vaultsrepo "github.com/vpetrenko/vaultd/internal/server/repositories/vaults"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	// the in-memory fakes ignore the DBTX; transactions just need to open
	// and close
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 50; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// memStore is an in-memory implementation of every repository interface,
// shared by one fakeRepoManager. Ids are sequential for easy assertions.
type memStore struct {
	seq      int
	users    map[string]*models.User
	keys     map[string]*models.UserKey
	vaults   map[string]*models.Vault
	entries  map[string]*models.Entry
	fields   map[string]*models.Field
	files    map[string]*models.File
	rights   map[string]*models.Right
	inboxes  map[string]*models.Inbox
	shares   map[string]*models.Share
	refresh  map[string]*models.RefreshToken
	vaultLog []*models.VaultLog
	inboxLog []*models.InboxLog
	shareLog []*models.ShareLog
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*models.User),
		keys:    make(map[string]*models.UserKey),
		vaults:  make(map[string]*models.Vault),
		entries: make(map[string]*models.Entry),
		fields:  make(map[string]*models.Field),
		files:   make(map[string]*models.File),
		rights:  make(map[string]*models.Right),
		inboxes: make(map[string]*models.Inbox),
		shares:  make(map[string]*models.Share),
		refresh: make(map[string]*models.RefreshToken),
	}
}

func (m *memStore) nextID() string {
	m.seq++
	return fmt.Sprintf("id-%d", m.seq)
}

// fakeRepoManager vends repositories backed by one memStore, regardless of
// the DBTX handed in.
type fakeRepoManager struct {
	store *memStore
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{store: newMemStore()}
}

func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository                 { return &memUsers{m.store} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository { return &memRefresh{m.store} }
func (m *fakeRepoManager) UserKeys(dbx.DBTX) userkeysrepo.Repository           { return &memUserKeys{m.store} }
func (m *fakeRepoManager) Vaults(dbx.DBTX) vaultsrepo.Repository               { return &memVaults{m.store} }
func (m *fakeRepoManager) Entries(dbx.DBTX) entriesrepo.Repository             { return &memEntries{m.store} }
func (m *fakeRepoManager) Fields(dbx.DBTX) fieldsrepo.Repository               { return &memFields{m.store} }
func (m *fakeRepoManager) Files(dbx.DBTX) filesrepo.Repository                 { return &memFiles{m.store} }
func (m *fakeRepoManager) Rights(dbx.DBTX) rightsrepo.Repository               { return &memRights{m.store} }
func (m *fakeRepoManager) Inboxes(dbx.DBTX) inboxesrepo.Repository             { return &memInboxes{m.store} }
func (m *fakeRepoManager) Shares(dbx.DBTX) sharesrepo.Repository               { return &memShares{m.store} }
func (m *fakeRepoManager) Logs(dbx.DBTX) logsrepo.Repository                   { return &memLogs{m.store} }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }

// --- users ---

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	u.ID = r.s.nextID()
	u.InboxToken = "inbox-" + u.ID
	r.s.users[u.ID] = u
	return u, nil
}

func (r *memUsers) GetByLogin(_ context.Context, login string) (*models.User, error) {
	for _, u := range r.s.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := r.s.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByInboxToken(_ context.Context, token string) (*models.User, error) {
	for _, u := range r.s.users {
		if u.InboxToken == token {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) SetInboxToken(_ context.Context, userID, token string) error {
	if u, ok := r.s.users[userID]; ok {
		u.InboxToken = token
		return nil
	}
	return common.ErrorNotFound
}

// --- refresh tokens ---

type memRefresh struct{ s *memStore }

func (r *memRefresh) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.s.refresh[token] = &models.RefreshToken{Token: token, UserID: userID, Expires: time.Now().Add(validity)}
	return nil
}

func (r *memRefresh) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := r.s.refresh[token]; ok {
		return t, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memRefresh) Delete(_ context.Context, token string) error {
	delete(r.s.refresh, token)
	return nil
}

func (r *memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range r.s.refresh {
		if t.Expires.Before(now) {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

// --- user keys ---

type memUserKeys struct{ s *memStore }

func (r *memUserKeys) GetCurrent(_ context.Context, userID string) (*models.UserKey, error) {
	for _, k := range r.s.keys {
		if k.UserID == userID && k.Current {
			return k, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUserKeys) Insert(_ context.Context, key *models.UserKey) (string, error) {
	id := r.s.nextID()
	cp := *key
	cp.ID = id
	r.s.keys[id] = &cp
	return id, nil
}

func (r *memUserKeys) DemoteCurrent(_ context.Context, userID string) error {
	for _, k := range r.s.keys {
		if k.UserID == userID {
			k.Current = false
		}
	}
	return nil
}

func (r *memUserKeys) GetPublicKey(_ context.Context, userID string) (string, error) {
	for _, k := range r.s.keys {
		if k.UserID == userID && k.Current {
			return k.Public, nil
		}
	}
	return "", common.ErrorNotFound
}

// --- vaults ---

type memVaults struct{ s *memStore }

func (r *memVaults) Create(_ context.Context, v *models.Vault) (*models.Vault, error) {
	v.ID = r.s.nextID()
	if v.UUID == "" {
		v.UUID = "uuid-" + v.ID
	}
	r.s.vaults[v.ID] = v
	return v, nil
}

func (r *memVaults) GetByID(_ context.Context, id string) (*models.Vault, error) {
	if v, ok := r.s.vaults[id]; ok {
		return v, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memVaults) Update(_ context.Context, id, name, note string) error {
	v, ok := r.s.vaults[id]
	if !ok {
		return common.ErrorNotFound
	}
	v.Name = name
	v.Note = note
	return nil
}

func (r *memVaults) Delete(_ context.Context, id string) error {
	delete(r.s.vaults, id)
	for eid, e := range r.s.entries {
		if e.VaultID == id {
			delete(r.s.entries, eid)
		}
	}
	return nil
}

func (r *memVaults) SetReencryptRequired(_ context.Context, id string, required bool) error {
	v, ok := r.s.vaults[id]
	if !ok {
		return common.ErrorNotFound
	}
	v.ReencryptRequired = required
	return nil
}

func (r *memVaults) MarkReencryptRequiredForUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, right := range r.s.rights {
		if right.UserID == userID {
			if v, ok := r.s.vaults[right.VaultID]; ok && !v.ReencryptRequired {
				v.ReencryptRequired = true
				n++
			}
		}
	}
	return n, nil
}

func (r *memVaults) ListByOwner(_ context.Context, ownerID string) ([]*models.Vault, error) {
	var out []*models.Vault
	for _, v := range r.s.vaults {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- entries ---

type memEntries struct{ s *memStore }

func (r *memEntries) Create(_ context.Context, e *models.Entry) (*models.Entry, error) {
	e.ID = r.s.nextID()
	if e.UUID == "" {
		e.UUID = "uuid-" + e.ID
	}
	r.s.entries[e.ID] = e
	return e, nil
}

func (r *memEntries) GetByID(_ context.Context, id string) (*models.Entry, error) {
	if e, ok := r.s.entries[id]; ok {
		return e, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memEntries) GetByUUID(_ context.Context, vaultID, uuid string) (*models.Entry, error) {
	for _, e := range r.s.entries {
		if e.VaultID == vaultID && e.UUID == uuid {
			return e, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memEntries) Update(_ context.Context, e *models.Entry) error {
	stored, ok := r.s.entries[e.ID]
	if !ok {
		return common.ErrorNotFound
	}
	stored.Name = e.Name
	stored.URL = e.URL
	stored.Note = e.Note
	stored.Tags = e.Tags
	stored.ExpireDate = e.ExpireDate
	return nil
}

func (r *memEntries) UpdateParent(_ context.Context, id string, parentID *string) error {
	e, ok := r.s.entries[id]
	if !ok {
		return common.ErrorNotFound
	}
	e.ParentID = parentID
	return nil
}

func (r *memEntries) UpdateCompleteName(_ context.Context, id, completeName string) error {
	e, ok := r.s.entries[id]
	if !ok {
		return common.ErrorNotFound
	}
	e.CompleteName = completeName
	return nil
}

func (r *memEntries) ListChildren(_ context.Context, parentID string) ([]*models.Entry, error) {
	var out []*models.Entry
	for _, e := range r.s.entries {
		if e.ParentID != nil && *e.ParentID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEntries) ListRoots(_ context.Context, vaultID string) ([]*models.Entry, error) {
	var out []*models.Entry
	for _, e := range r.s.entries {
		if e.VaultID == vaultID && e.ParentID == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEntries) Delete(_ context.Context, id string) error {
	delete(r.s.entries, id)
	// cascade
	for eid, e := range r.s.entries {
		if e.ParentID != nil && *e.ParentID == id {
			r.Delete(context.Background(), eid)
		}
	}
	return nil
}

func (r *memEntries) Search(_ context.Context, vaultID string, filter entriesrepo.SearchFilter) ([]*models.Entry, error) {
	now := time.Now()
	var out []*models.Entry
	for _, e := range r.s.entries {
		if e.VaultID != vaultID {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Tag != "" && !strings.Contains(e.Tags, filter.Tag) {
			continue
		}
		if filter.Expired != nil && e.Expired(now) != *filter.Expired {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- fields ---

type memFields struct{ s *memStore }

func (r *memFields) Upsert(_ context.Context, f *models.Field) error {
	for _, stored := range r.s.fields {
		if stored.EntryID == f.EntryID && stored.Name == f.Name {
			stored.IV = f.IV
			stored.Value = f.Value
			return nil
		}
	}
	id := r.s.nextID()
	cp := *f
	cp.ID = id
	r.s.fields[id] = &cp
	return nil
}

func (r *memFields) ListByEntry(_ context.Context, entryID string) ([]*models.Field, error) {
	var out []*models.Field
	for _, f := range r.s.fields {
		if f.EntryID == entryID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFields) UpdateCiphertext(_ context.Context, vaultID, id, value, iv string) (int64, error) {
	f, ok := r.s.fields[id]
	if !ok {
		return 0, nil
	}
	if e, ok := r.s.entries[f.EntryID]; !ok || e.VaultID != vaultID {
		return 0, nil
	}
	f.Value = value
	f.IV = iv
	return 1, nil
}

func (r *memFields) CountByVault(_ context.Context, vaultID string) (int64, error) {
	var n int64
	for _, f := range r.s.fields {
		if e, ok := r.s.entries[f.EntryID]; ok && e.VaultID == vaultID {
			n++
		}
	}
	return n, nil
}

func (r *memFields) Delete(_ context.Context, id string) error {
	delete(r.s.fields, id)
	return nil
}

// --- files ---

type memFiles struct{ s *memStore }

func (r *memFiles) Upsert(_ context.Context, f *models.File) error {
	for _, stored := range r.s.files {
		if stored.EntryID == f.EntryID && stored.Name == f.Name {
			stored.IV = f.IV
			stored.Content = f.Content
			return nil
		}
	}
	id := r.s.nextID()
	cp := *f
	cp.ID = id
	r.s.files[id] = &cp
	return nil
}

func (r *memFiles) ListByEntry(_ context.Context, entryID string) ([]*models.File, error) {
	var out []*models.File
	for _, f := range r.s.files {
		if f.EntryID == entryID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFiles) UpdateCiphertext(_ context.Context, vaultID, id string, content []byte, iv string) (int64, error) {
	f, ok := r.s.files[id]
	if !ok {
		return 0, nil
	}
	if e, ok := r.s.entries[f.EntryID]; !ok || e.VaultID != vaultID {
		return 0, nil
	}
	f.Content = content
	f.IV = iv
	return 1, nil
}

func (r *memFiles) CountByVault(_ context.Context, vaultID string) (int64, error) {
	var n int64
	for _, f := range r.s.files {
		if e, ok := r.s.entries[f.EntryID]; ok && e.VaultID == vaultID {
			n++
		}
	}
	return n, nil
}

func (r *memFiles) Delete(_ context.Context, id string) error {
	delete(r.s.files, id)
	return nil
}

// --- rights ---

type memRights struct{ s *memStore }

func (r *memRights) Create(_ context.Context, right *models.Right) (*models.Right, error) {
	for _, stored := range r.s.rights {
		if stored.VaultID == right.VaultID && stored.UserID == right.UserID {
			return nil, common.ErrorAlreadyExists
		}
	}
	right.ID = r.s.nextID()
	r.s.rights[right.ID] = right
	return right, nil
}

func (r *memRights) GetByID(_ context.Context, id string) (*models.Right, error) {
	if right, ok := r.s.rights[id]; ok {
		return right, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memRights) FindByVaultAndUser(_ context.Context, vaultID, userID string) (*models.Right, error) {
	for _, right := range r.s.rights {
		if right.VaultID == vaultID && right.UserID == userID {
			return right, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memRights) ListByVault(_ context.Context, vaultID string) ([]*models.Right, error) {
	var out []*models.Right
	for _, right := range r.s.rights {
		if right.VaultID == vaultID {
			out = append(out, right)
		}
	}
	return out, nil
}

func (r *memRights) ListByUser(_ context.Context, userID string) ([]*models.Right, error) {
	var out []*models.Right
	for _, right := range r.s.rights {
		if right.UserID == userID {
			out = append(out, right)
		}
	}
	return out, nil
}

func (r *memRights) Update(_ context.Context, right *models.Right) error {
	stored, ok := r.s.rights[right.ID]
	if !ok {
		return common.ErrorNotFound
	}
	stored.PermCreate = right.PermCreate
	stored.PermWrite = right.PermWrite
	stored.PermShare = right.PermShare
	stored.PermDelete = right.PermDelete
	return nil
}

func (r *memRights) UpdateKey(_ context.Context, id, key string) (int64, error) {
	right, ok := r.s.rights[id]
	if !ok {
		return 0, nil
	}
	right.Key = key
	return 1, nil
}

func (r *memRights) Delete(_ context.Context, id string) error {
	delete(r.s.rights, id)
	return nil
}

func (r *memRights) CountByVault(_ context.Context, vaultID string) (int64, error) {
	var n int64
	for _, right := range r.s.rights {
		if right.VaultID == vaultID {
			n++
		}
	}
	return n, nil
}

// --- inboxes ---

type memInboxes struct{ s *memStore }

func (r *memInboxes) Create(_ context.Context, inbox *models.Inbox) (*models.Inbox, error) {
	inbox.ID = r.s.nextID()
	r.s.inboxes[inbox.ID] = inbox
	return inbox, nil
}

func (r *memInboxes) FindByToken(_ context.Context, token string) (*models.Inbox, error) {
	for _, in := range r.s.inboxes {
		if in.Token == token {
			return in, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memInboxes) FindByUser(_ context.Context, userID string) (*models.Inbox, error) {
	for _, in := range r.s.inboxes {
		if in.UserID == userID {
			return in, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memInboxes) ConsumeWrite(_ context.Context, token, secret string, secretFile []byte, key, iv string, now time.Time) (string, error) {
	for _, in := range r.s.inboxes {
		if in.Token == token && in.Accesses > 0 && in.Expiration.After(now) {
			in.Secret = secret
			in.SecretFile = secretFile
			in.Key = key
			in.IV = iv
			in.Accesses--
			return in.ID, nil
		}
	}
	return "", common.ErrorGone
}

func (r *memInboxes) Extend(_ context.Context, id string, accesses int, expiration time.Time) error {
	in, ok := r.s.inboxes[id]
	if !ok {
		return common.ErrorNotFound
	}
	in.Accesses = accesses
	in.Expiration = expiration
	return nil
}

func (r *memInboxes) UpdateToken(_ context.Context, id, token string) error {
	in, ok := r.s.inboxes[id]
	if !ok {
		return common.ErrorNotFound
	}
	in.Token = token
	return nil
}

// --- shares ---

type memShares struct{ s *memStore }

func (r *memShares) Create(_ context.Context, share *models.Share) (*models.Share, error) {
	share.ID = r.s.nextID()
	r.s.shares[share.ID] = share
	return share, nil
}

func (r *memShares) FindByToken(_ context.Context, token string) (*models.Share, error) {
	for _, sh := range r.s.shares {
		if sh.Token == token {
			return sh, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memShares) ListByUser(_ context.Context, userID string) ([]*models.Share, error) {
	var out []*models.Share
	for _, sh := range r.s.shares {
		if sh.UserID == userID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (r *memShares) Consume(_ context.Context, token string, now time.Time) (*models.Share, error) {
	for _, sh := range r.s.shares {
		if sh.Token == token && sh.Accesses > 0 && sh.Expiration.After(now) {
			sh.Accesses--
			return sh, nil
		}
	}
	return nil, common.ErrorGone
}

func (r *memShares) Delete(_ context.Context, id string) error {
	delete(r.s.shares, id)
	return nil
}

func (r *memShares) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, sh := range r.s.shares {
		if sh.Expiration.Before(cutoff) {
			delete(r.s.shares, id)
			n++
		}
	}
	return n, nil
}

// --- logs ---

type memLogs struct{ s *memStore }

func (r *memLogs) AddVaultLog(_ context.Context, log *models.VaultLog) error {
	log.ID = r.s.nextID()
	log.CreatedAt = time.Now()
	r.s.vaultLog = append(r.s.vaultLog, log)
	return nil
}

func (r *memLogs) AddInboxLog(_ context.Context, log *models.InboxLog) error {
	log.ID = r.s.nextID()
	log.CreatedAt = time.Now()
	r.s.inboxLog = append(r.s.inboxLog, log)
	return nil
}

func (r *memLogs) AddShareLog(_ context.Context, log *models.ShareLog) error {
	log.ID = r.s.nextID()
	log.CreatedAt = time.Now()
	r.s.shareLog = append(r.s.shareLog, log)
	return nil
}

func (r *memLogs) ListByVault(_ context.Context, vaultID string) ([]*models.VaultLog, error) {
	var out []*models.VaultLog
	for i := len(r.s.vaultLog) - 1; i >= 0; i-- {
		if r.s.vaultLog[i].VaultID == vaultID {
			out = append(out, r.s.vaultLog[i])
		}
	}
	return out, nil
}
