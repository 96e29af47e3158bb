package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/repository"
)

// fakeStore is an in-memory repository.Store. Every method holds one
// mutex, so interleaved calls serialize the way row locks would. InTx
// snapshots state and restores it when the callback fails, mirroring a
// rollback.
type fakeStore struct {
	mu sync.Mutex

	now func() time.Time

	accounts map[string]models.Account // by id
	byMobile map[string]string         // mobile -> id
	codes    []models.OneTimeCode
	sessions map[string]models.Session // by id
	byHash   map[string]string         // hex(token hash) -> session id
	attempts []models.FailedLogin
	uploads  []models.GuestUpload

	createUploadErr error
	onLockDevice    func(*fakeStore)
	onAccountLock   func(*fakeStore)
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		now:      now,
		accounts: make(map[string]models.Account),
		byMobile: make(map[string]string),
		sessions: make(map[string]models.Session),
		byHash:   make(map[string]string),
	}
}

func (f *fakeStore) Accounts() repository.Accounts         { return (*fakeAccounts)(f) }
func (f *fakeStore) Codes() repository.Codes               { return (*fakeCodes)(f) }
func (f *fakeStore) Sessions() repository.Sessions         { return (*fakeSessions)(f) }
func (f *fakeStore) Attempts() repository.Attempts         { return (*fakeAttempts)(f) }
func (f *fakeStore) GuestUploads() repository.GuestUploads { return (*fakeUploads)(f) }

func (f *fakeStore) InTx(_ context.Context, fn func(repository.Store) error) error {
	f.mu.Lock()
	snapshot := f.copyState()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.restoreState(snapshot)
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeState struct {
	accounts map[string]models.Account
	byMobile map[string]string
	codes    []models.OneTimeCode
	sessions map[string]models.Session
	byHash   map[string]string
	attempts []models.FailedLogin
	uploads  []models.GuestUpload
}

func (f *fakeStore) copyState() fakeState {
	st := fakeState{
		accounts: make(map[string]models.Account, len(f.accounts)),
		byMobile: make(map[string]string, len(f.byMobile)),
		sessions: make(map[string]models.Session, len(f.sessions)),
		byHash:   make(map[string]string, len(f.byHash)),
		codes:    append([]models.OneTimeCode(nil), f.codes...),
		attempts: append([]models.FailedLogin(nil), f.attempts...),
		uploads:  append([]models.GuestUpload(nil), f.uploads...),
	}
	for k, v := range f.accounts {
		st.accounts[k] = v
	}
	for k, v := range f.byMobile {
		st.byMobile[k] = v
	}
	for k, v := range f.sessions {
		st.sessions[k] = v
	}
	for k, v := range f.byHash {
		st.byHash[k] = v
	}
	return st
}

func (f *fakeStore) restoreState(st fakeState) {
	f.accounts = st.accounts
	f.byMobile = st.byMobile
	f.codes = st.codes
	f.sessions = st.sessions
	f.byHash = st.byHash
	f.attempts = st.attempts
	f.uploads = st.uploads
}

type fakeAccounts fakeStore

func (f *fakeAccounts) Create(_ context.Context, account models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byMobile[account.Mobile]; exists {
		return repository.ErrDuplicateMobile
	}
	account.CreatedAt = f.now()
	account.UpdatedAt = f.now()
	f.accounts[account.ID] = account
	f.byMobile[account.Mobile] = account.ID
	return nil
}

func (f *fakeAccounts) getByMobileLocked(mobile string) (models.Account, error) {
	id, ok := f.byMobile[mobile]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return f.accounts[id], nil
}

func (f *fakeAccounts) GetByMobile(_ context.Context, mobile string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getByMobileLocked(mobile)
}

func (f *fakeAccounts) GetByMobileForUpdate(_ context.Context, mobile string) (models.Account, error) {
	if f.onAccountLock != nil {
		f.onAccountLock((*fakeStore)(f))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getByMobileLocked(mobile)
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccounts) SetStatus(_ context.Context, id string, status models.AccountStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	account.Status = status
	account.UpdatedAt = f.now()
	f.accounts[id] = account
	return nil
}

func (f *fakeAccounts) RecordLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	account.LastLoginAt = &at
	account.LoginCount++
	f.accounts[id] = account
	return nil
}

type fakeCodes fakeStore

func (f *fakeCodes) ConsumeOutstanding(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for i := range f.codes {
		if f.codes[i].AccountID == accountID && f.codes[i].ConsumedAt == nil {
			consumed := now
			f.codes[i].ConsumedAt = &consumed
		}
	}
	return nil
}

func (f *fakeCodes) Create(_ context.Context, code models.OneTimeCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	code.CreatedAt = f.now()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeCodes) LatestUnconsumed(_ context.Context, accountID string, mobile string) (models.OneTimeCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.codes) - 1; i >= 0; i-- {
		c := f.codes[i]
		if c.AccountID == accountID && c.Mobile == mobile && c.ConsumedAt == nil {
			return c, nil
		}
	}
	return models.OneTimeCode{}, repository.ErrCodeNotFound
}

func (f *fakeCodes) IncrementAttempts(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].ID == id {
			f.codes[i].Attempts++
			return f.codes[i].Attempts, nil
		}
	}
	return 0, repository.ErrCodeNotFound
}

func (f *fakeCodes) MarkConsumed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].ID == id {
			if f.codes[i].ConsumedAt != nil {
				return repository.ErrCodeNotFound
			}
			consumed := f.now()
			f.codes[i].ConsumedAt = &consumed
			return nil
		}
	}
	return repository.ErrCodeNotFound
}

type fakeSessions fakeStore

func (f *fakeSessions) Create(_ context.Context, session models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	f.byHash[hex.EncodeToString(session.TokenHash)] = session.ID
	return nil
}

func (f *fakeSessions) GetByTokenHash(_ context.Context, tokenHash []byte) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hex.EncodeToString(tokenHash)]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return f.sessions[id], nil
}

func (f *fakeSessions) Touch(_ context.Context, id string, ip string, userAgent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.LastSeenAt = f.now()
	if ip != "" {
		session.IPAddress = ip
	}
	if userAgent != "" {
		session.UserAgent = userAgent
	}
	f.sessions[id] = session
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || !session.Active {
		return repository.ErrSessionNotFound
	}
	session.Active = false
	f.sessions[id] = session
	return nil
}

type fakeAttempts fakeStore

func (f *fakeAttempts) Insert(_ context.Context, attempt models.FailedLogin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeAttempts) CountSince(_ context.Context, mobile string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.attempts {
		if a.Mobile == mobile && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttempts) DeleteOlderThan(_ context.Context, mobile string, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.attempts[:0]
	for _, a := range f.attempts {
		if a.Mobile != mobile || !a.CreatedAt.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	f.attempts = kept
	return nil
}

func (f *fakeAttempts) PruneOlderThan(_ context.Context, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.attempts[:0]
	for _, a := range f.attempts {
		if !a.CreatedAt.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	f.attempts = kept
	return nil
}

func (f *fakeAttempts) DeleteForMobile(_ context.Context, mobile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.attempts[:0]
	for _, a := range f.attempts {
		if a.Mobile != mobile {
			kept = append(kept, a)
		}
	}
	f.attempts = kept
	return nil
}

type fakeUploads fakeStore

func (f *fakeUploads) LockDevice(_ context.Context, _ string) error {
	if f.onLockDevice != nil {
		f.onLockDevice((*fakeStore)(f))
	}
	return nil
}

func (f *fakeUploads) Usage(_ context.Context, fingerprint string, now time.Time) (models.GuestUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var usage models.GuestUsage
	for _, u := range f.uploads {
		if u.Fingerprint != fingerprint {
			continue
		}
		if u.ExpiresAt != nil && !u.ExpiresAt.After(now) {
			continue
		}
		usage.Count++
		usage.TotalBytes += u.SizeBytes
	}
	return usage, nil
}

func (f *fakeUploads) Create(_ context.Context, upload models.GuestUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUploadErr != nil {
		return f.createUploadErr
	}
	upload.CreatedAt = f.now()
	f.uploads = append(f.uploads, upload)
	return nil
}

func (f *fakeUploads) ListExpired(_ context.Context, now time.Time, limit int) ([]models.GuestUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []models.GuestUpload
	for _, u := range f.uploads {
		if u.ExpiresAt != nil && !u.ExpiresAt.After(now) {
			expired = append(expired, u)
			if len(expired) == limit {
				break
			}
		}
	}
	return expired, nil
}

func (f *fakeUploads) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.uploads[:0]
	for _, u := range f.uploads {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	f.uploads = kept
	return nil
}

// fakeSender captures dispatched messages so tests can read the code that
// would have gone out over SMS.
type fakeSender struct {
	mu       sync.Mutex
	messages []string
	mobiles  []string
	failWith error
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (s *fakeSender) Send(_ context.Context, mobile string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.mobiles = append(s.mobiles, mobile)
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return codePattern.FindString(s.messages[len(s.messages)-1])
}

// fakeObjects is an in-memory ObjectStorage.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[objectKey] = data
	return nil
}

func (f *fakeObjects) Remove(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[objectKey]; !ok {
		return errors.New("object not found")
	}
	delete(f.objects, objectKey)
	return nil
}

func (f *fakeObjects) GuestBucket() string { return "guest-test" }

func (f *fakeObjects) PublicURL(objectKey string) string {
	return fmt.Sprintf("https://files.test/%s", objectKey)
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
