package onboarding

import (
	"encoding/json"
	"sync"
)

// Storage はセッション状態の永続化先を表す。
// ホスト環境(ブラウザローカルストレージやファイル)が実装を与える。
type Storage interface {
	Get(key string) (string, bool)
	Set(key string, value string)
	Delete(key string)
}

// 保存キー。
const (
	storageKeyToken       = "auth_token"
	storageKeyProfile     = "user_data"
	storageKeyERPRedirect = "redirect_to_erp"
)

// MemoryStorage はプロセス内のStorage実装。主にテストとCLIで使う。
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage はMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get はキーに対応する値を返す。
func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set はキーに値を保存する。
func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete はキーを削除する。
func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// SessionStore はセッショントークンとプロフィールの保存を管理し、
// 認証状態の変化を購読者に通知する。
type SessionStore struct {
	storage Storage

	mu        sync.Mutex
	nextSubID int
	subs      map[int]func(*Profile)
}

// NewSessionStore はSessionStoreを生成する。
func NewSessionStore(storage Storage) *SessionStore {
	return &SessionStore{
		storage: storage,
		subs:    make(map[int]func(*Profile)),
	}
}

// SaveSession はセッション交換の結果を保存する。
// 企業なしから企業ありへの遷移を検知した場合、ERP本体への転送を
// ワンショットで予約する。
func (s *SessionStore) SaveSession(session *Session) {
	hadCompany := s.hasCompanyState()
	s.storage.Set(storageKeyToken, session.Token)
	s.saveProfile(session.Profile)
	if !hadCompany && session.Profile.HasCompany {
		s.MarkERPRedirect()
	}
	s.notify()
}

// Token は保存済みのセッショントークンを返す。
func (s *SessionStore) Token() (string, bool) {
	return s.storage.Get(storageKeyToken)
}

// Profile は保存済みのプロフィールを返す。
func (s *SessionStore) Profile() (*Profile, bool) {
	raw, ok := s.storage.Get(storageKeyProfile)
	if !ok {
		return nil, false
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.storage.Delete(storageKeyProfile)
		return nil, false
	}
	return &profile, true
}

// UpdateProfile はプロフィールを更新する。表示用フィールドが空で届いた
// 場合は保存済みの値を保持する。更新で企業ありに遷移した場合は
// ERP本体への転送をワンショットで予約する。再予約は遷移ごとに一度だけ。
func (s *SessionStore) UpdateProfile(incoming Profile) {
	hadCompany := false
	if current, ok := s.Profile(); ok {
		hadCompany = current.HasCompany
		if incoming.FullName == "" {
			incoming.FullName = current.FullName
		}
		if incoming.Email == "" {
			incoming.Email = current.Email
		}
	}
	s.saveProfile(incoming)
	if !hadCompany && incoming.HasCompany {
		s.MarkERPRedirect()
	}
	s.notify()
}

// MarkERPRedirect はERP本体への転送予約を記録する。
func (s *SessionStore) MarkERPRedirect() {
	s.storage.Set(storageKeyERPRedirect, "true")
}

// ConsumeERPRedirect は転送予約を消費する。予約はワンショットで、
// 読み取りと同時に消える。
func (s *SessionStore) ConsumeERPRedirect() bool {
	v, ok := s.storage.Get(storageKeyERPRedirect)
	if !ok {
		return false
	}
	s.storage.Delete(storageKeyERPRedirect)
	return v == "true"
}

// Logout はセッション状態を全て破棄する。
func (s *SessionStore) Logout() {
	s.storage.Delete(storageKeyToken)
	s.storage.Delete(storageKeyProfile)
	s.storage.Delete(storageKeyERPRedirect)
	s.notify()
}

// ObserveAuthState は認証状態の変化を購読する。登録時に現在の状態で
// 即座に一度呼び出される。戻り値は購読解除関数。
func (s *SessionStore) ObserveAuthState(cb func(*Profile)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = cb
	s.mu.Unlock()

	cb(s.currentProfileOrNil())

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *SessionStore) hasCompanyState() bool {
	profile, ok := s.Profile()
	return ok && profile.HasCompany
}

func (s *SessionStore) saveProfile(profile Profile) {
	data, err := json.Marshal(profile)
	if err != nil {
		return
	}
	s.storage.Set(storageKeyProfile, string(data))
}

func (s *SessionStore) currentProfileOrNil() *Profile {
	if profile, ok := s.Profile(); ok {
		return profile
	}
	return nil
}

func (s *SessionStore) notify() {
	s.mu.Lock()
	subs := make([]func(*Profile), 0, len(s.subs))
	for _, cb := range s.subs {
		subs = append(subs, cb)
	}
	s.mu.Unlock()

	profile := s.currentProfileOrNil()
	for _, cb := range subs {
		cb(profile)
	}
}
