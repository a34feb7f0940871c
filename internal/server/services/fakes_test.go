package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/postdrop/internal/common"
	"github.com/avolkov/postdrop/internal/dbx"
	"github.com/avolkov/postdrop/internal/logging"
	"github.com/avolkov/postdrop/internal/server/models"
	blobsrepo "github.com/avolkov/postdrop/internal/server/repositories/blobs"
	messagesrepo "github.com/avolkov/postdrop/internal/server/repositories/messages"
	usersrepo "github.com/avolkov/postdrop/internal/server/repositories/users"
)

// --- shared fakes for the service tests ---

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

type dispatchEvent struct {
	addressee uuid.UUID
	messageID uuid.UUID
}

type recordingDispatcher struct {
	mu      sync.Mutex
	waiting []dispatchEvent
	deleted []dispatchEvent
}

func (d *recordingDispatcher) MessageWaiting(_ context.Context, addressee, messageID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiting = append(d.waiting, dispatchEvent{addressee, messageID})
}

func (d *recordingDispatcher) MessageDeleted(_ context.Context, addressee, messageID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, dispatchEvent{addressee, messageID})
}

type fakeUsersRepo struct {
	byUID map[uuid.UUID]*models.User

	createOut *models.User
	createErr error

	byUsername map[string]*models.User

	setWordlistErrs []error
	setWordlistIDs  []int64
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	created := *u
	created.ID = 1
	created.CreatedAt = time.Now()
	return &created, nil
}

func (f *fakeUsersRepo) GetByUID(_ context.Context, uid uuid.UUID) (*models.User, error) {
	if u, ok := f.byUID[uid]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	if u, ok := f.byUsername[username]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetByWordlistID(context.Context, int64) (*models.User, error) {
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) UpdateUsername(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeUsersRepo) SetLookupAllowed(context.Context, uuid.UUID, bool) error { return nil }

func (f *fakeUsersRepo) SetWordlistID(_ context.Context, _ uuid.UUID, wordlistID int64) error {
	f.setWordlistIDs = append(f.setWordlistIDs, wordlistID)
	if len(f.setWordlistErrs) > 0 {
		err := f.setWordlistErrs[0]
		f.setWordlistErrs = f.setWordlistErrs[1:]
		return err
	}
	return nil
}

// fakeBlobsRepo is an in-memory blob store. Reference counts are injected via
// refs so DeleteIfOrphan can exercise its re-check guard.
type fakeBlobsRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Blob
	refs   map[int64]int64

	deleteErr map[int64]error
	created   []*models.Blob
}

func newFakeBlobsRepo() *fakeBlobsRepo {
	return &fakeBlobsRepo{
		byID:      make(map[int64]*models.Blob),
		refs:      make(map[int64]int64),
		deleteErr: make(map[int64]error),
	}
}

func (f *fakeBlobsRepo) add(path string, size int64) *models.Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b := &models.Blob{ID: f.nextID, Path: path, Size: size, CreatedAt: time.Now()}
	f.byID[b.ID] = b
	return b
}

func (f *fakeBlobsRepo) Create(_ context.Context, blob *models.Blob) (*models.Blob, error) {
	created := f.add(blob.Path, blob.Size)
	f.mu.Lock()
	f.created = append(f.created, created)
	f.mu.Unlock()
	return created, nil
}

func (f *fakeBlobsRepo) GetByPath(_ context.Context, path string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.byID {
		if b.Path == path {
			return b, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeBlobsRepo) CountReferences(_ context.Context, blobID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[blobID], nil
}

func (f *fakeBlobsRepo) SelectOrphans(context.Context) ([]*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Blob
	for _, b := range f.byID {
		if f.refs[b.ID] == 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBlobsRepo) DeleteIfOrphan(_ context.Context, blobID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[blobID]; err != nil {
		return false, err
	}
	if f.refs[blobID] > 0 {
		return false, nil
	}
	if _, ok := f.byID[blobID]; !ok {
		return false, nil
	}
	delete(f.byID, blobID)
	return true, nil
}

// memMessagesRepo keeps message records in memory and implements the guarded
// transitions for real, so service tests observe the same race semantics as
// the SQL implementation.
type memMessagesRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Message

	// addresseeUID backs the user join in SelectDue.
	addresseeUID map[int64]uuid.UUID

	createErr  map[uuid.UUID]error
	advanceErr map[int64]error

	// afterSelectDue runs between the due scan and the per-row transitions,
	// to simulate a concurrent writer.
	afterSelectDue func()
}

func newMemMessagesRepo() *memMessagesRepo {
	return &memMessagesRepo{
		rows:         make(map[int64]*models.Message),
		addresseeUID: make(map[int64]uuid.UUID),
		createErr:    make(map[uuid.UUID]error),
		advanceErr:   make(map[int64]error),
	}
}

func (f *memMessagesRepo) byMessageID(messageID uuid.UUID) *models.Message {
	for _, m := range f.rows {
		if m.MessageID == messageID {
			return m
		}
	}
	return nil
}

func (f *memMessagesRepo) Create(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[msg.MessageID]; err != nil {
		return err
	}
	if f.byMessageID(msg.MessageID) != nil {
		return common.ErrDuplicateMessageID
	}
	f.nextID++
	stored := *msg
	stored.ID = f.nextID
	f.rows[stored.ID] = &stored
	msg.ID = stored.ID
	return nil
}

func (f *memMessagesRepo) GetByMessageID(_ context.Context, messageID uuid.UUID) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.byMessageID(messageID); m != nil {
		copied := *m
		return &copied, nil
	}
	return nil, common.ErrNotFound
}

func (f *memMessagesRepo) ListByAddressee(_ context.Context, addresseeID int64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.rows {
		if m.AddresseeID == addresseeID && m.Status < models.StatusDeletedWithoutDelivery {
			copied := *m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func statusIn(s models.DeliveryStatus, from []models.DeliveryStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (f *memMessagesRepo) Advance(_ context.Context, messageID uuid.UUID, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byMessageID(messageID)
	if m == nil {
		return false, common.ErrNotFound
	}
	if !statusIn(m.Status, from) {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (f *memMessagesRepo) SelectDue(_ context.Context, cutoff time.Time, from ...models.DeliveryStatus) ([]*models.DueMessage, error) {
	f.mu.Lock()
	var out []*models.DueMessage
	for _, m := range f.rows {
		if !m.ReceivedAt.After(cutoff) && statusIn(m.Status, from) {
			out = append(out, &models.DueMessage{
				ID:           m.ID,
				MessageID:    m.MessageID,
				AddresseeUID: f.addresseeUID[m.AddresseeID],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	f.mu.Unlock()
	if f.afterSelectDue != nil {
		f.afterSelectDue()
	}
	return out, nil
}

func (f *memMessagesRepo) AdvanceByID(_ context.Context, id int64, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.advanceErr[id]; err != nil {
		return false, err
	}
	m, ok := f.rows[id]
	if !ok {
		return false, common.ErrNotFound
	}
	if !statusIn(m.Status, from) {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (f *memMessagesRepo) AdvanceToDeleted(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.advanceErr[id]; err != nil {
		return false, err
	}
	m, ok := f.rows[id]
	if !ok {
		return false, common.ErrNotFound
	}
	if m.Status != models.StatusNearEndDeletionList {
		return false, nil
	}
	m.Status = models.StatusDeletedWithoutDelivery
	m.BlobID = nil
	return true, nil
}

func (f *memMessagesRepo) Delete(_ context.Context, messageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byMessageID(messageID)
	if m == nil {
		return common.ErrNotFound
	}
	delete(f.rows, m.ID)
	return nil
}

type fakeRepoManager struct {
	users    *fakeUsersRepo
	blobs    *fakeBlobsRepo
	messages *memMessagesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.users }
func (m *fakeRepoManager) Blobs(dbx.DBTX) blobsrepo.Repository          { return m.blobs }
func (m *fakeRepoManager) Messages(dbx.DBTX) messagesrepo.Repository    { return m.messages }

type fakeContentStore struct {
	mu      sync.Mutex
	deleted []string
	// failures makes Delete fail the given number of times per path.
	failures map[string]int
}

func (f *fakeContentStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[path] > 0 {
		f.failures[path]--
		return fmt.Errorf("storage unavailable")
	}
	f.deleted = append(f.deleted, path)
	return nil
}
