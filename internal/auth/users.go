package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gofrs/flock"
	"golang.org/x/crypto/bcrypt"
)

// Roles understood by the store.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AdminUsername cannot be deleted or bulk-reset.
const AdminUsername = "admin"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrInvalidRole   = errors.New("invalid role")
	ErrProtectedUser = errors.New("protected user")
	ErrBadPassword   = errors.New("bad password")
)

// userJSON keeps the on-disk document byte-stable across rewrites.
var userJSON = sonic.Config{
	SortMapKeys: true,
	CopyString:  true,
}.Froze()

type userRecord struct {
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Info is the password-free view of one user.
type Info struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Credentials is a freshly generated username/password pair from a bulk
// operation, reported exactly once.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Failure explains why one bulk item was skipped.
type Failure struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// Store is a JSON-file user database. A process-wide mutex plus an
// advisory file lock guard every read-modify-write sequence, and the
// file is replaced atomically on save.
type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *Store) load() (map[string]userRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]userRecord{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}

	users := map[string]userRecord{}
	if err := userJSON.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode user file: %w", err)
	}

	return users, nil
}

func (s *Store) save(users map[string]userRecord) error {
	data, err := userJSON.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*")
	if err != nil {
		return fmt.Errorf("create temp user file: %w", err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write user file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close user file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace user file: %w", err)
	}

	return nil
}

// withLock runs fn with both the in-process and the cross-process lock
// held.
func (s *Store) withLock(fn func(map[string]userRecord) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock user file: %w", err)
	}
	defer s.lock.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}

	dirty, err := fn(users)
	if err != nil {
		return err
	}

	if dirty {
		return s.save(users)
	}

	return nil
}

func validRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

func toInfo(username string, r userRecord) Info {
	name := r.Name
	if name == "" {
		name = username
	}

	role := r.Role
	if role == "" {
		role = RoleUser
	}

	return Info{Username: username, Name: name, Email: r.Email, Role: role}
}

// Authenticate checks a username/password pair against the stored
// bcrypt hash.
func (s *Store) Authenticate(username, password string) (*Info, error) {
	var info *Info

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		r, ok := users[username]
		if !ok {
			return false, ErrUserNotFound
		}

		if bcrypt.CompareHashAndPassword([]byte(r.Password), []byte(password)) != nil {
			return false, ErrBadPassword
		}

		u := toInfo(username, r)
		info = &u

		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Get returns one user without the password hash.
func (s *Store) Get(username string) (*Info, error) {
	var info *Info

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		r, ok := users[username]
		if !ok {
			return false, ErrUserNotFound
		}

		u := toInfo(username, r)
		info = &u

		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// List returns every user sorted by username.
func (s *Store) List() ([]Info, error) {
	var infos []Info

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		for username, r := range users {
			infos = append(infos, toInfo(username, r))
		}

		return false, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Username < infos[j].Username })

	return infos, nil
}

// Add creates a user with a freshly hashed password.
func (s *Store) Add(username, password, name, email, role string) error {
	if !validRole(role) {
		return ErrInvalidRole
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	return s.withLock(func(users map[string]userRecord) (bool, error) {
		if _, ok := users[username]; ok {
			return false, ErrUserExists
		}

		if name == "" {
			name = username
		}

		users[username] = userRecord{Password: hash, Name: name, Email: email, Role: role}

		return true, nil
	})
}

// Update changes name, email and role; nil fields stay untouched.
func (s *Store) Update(username string, name, email, role *string) error {
	if role != nil && !validRole(*role) {
		return ErrInvalidRole
	}

	return s.withLock(func(users map[string]userRecord) (bool, error) {
		r, ok := users[username]
		if !ok {
			return false, ErrUserNotFound
		}

		if name != nil {
			r.Name = *name
		}

		if email != nil {
			r.Email = *email
		}

		if role != nil {
			r.Role = *role
		}

		users[username] = r

		return true, nil
	})
}

// Rename moves a user to a new username.
func (s *Store) Rename(oldName, newName string) error {
	return s.withLock(func(users map[string]userRecord) (bool, error) {
		r, ok := users[oldName]
		if !ok {
			return false, ErrUserNotFound
		}

		if _, ok := users[newName]; ok {
			return false, ErrUserExists
		}

		delete(users, oldName)
		users[newName] = r

		return true, nil
	})
}

// ChangePassword replaces a user's password hash.
func (s *Store) ChangePassword(username, newPassword string) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.withLock(func(users map[string]userRecord) (bool, error) {
		r, ok := users[username]
		if !ok {
			return false, ErrUserNotFound
		}

		r.Password = hash
		users[username] = r

		return true, nil
	})
}

// Remove deletes a user. The admin account cannot be removed.
func (s *Store) Remove(username string) error {
	if username == AdminUsername {
		return ErrProtectedUser
	}

	return s.withLock(func(users map[string]userRecord) (bool, error) {
		if _, ok := users[username]; !ok {
			return false, ErrUserNotFound
		}

		delete(users, username)

		return true, nil
	})
}

// BulkCreate generates count random users named prefix + sequence + a
// two-character random suffix. Fresh passwords are returned once; they
// are not recoverable afterwards.
func (s *Store) BulkCreate(count int, prefix string, startIndex int, role string, passwordLength int) ([]Credentials, []Failure, error) {
	if !validRole(role) {
		return nil, nil, ErrInvalidRole
	}

	if count < 1 {
		count = 1
	} else if count > 500 {
		count = 500
	}

	if startIndex < 1 {
		startIndex = 1
	}

	var (
		successes []Credentials
		failures  []Failure
	)

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		for i := 0; i < count; i++ {
			base := fmt.Sprintf("%s%d", prefix, startIndex+i)

			username := ""

			for attempt := 0; attempt < 5; attempt++ {
				candidate := base + randomSuffix()
				if _, ok := users[candidate]; !ok {
					username = candidate
					break
				}
			}

			if username == "" {
				failures = append(failures, Failure{Username: base, Reason: "多次尝试仍存在冲突"})
				continue
			}

			password := randomPassword(passwordLength)

			hash, err := hashPassword(password)
			if err != nil {
				return false, err
			}

			users[username] = userRecord{Password: hash, Name: username, Role: role}
			successes = append(successes, Credentials{Username: username, Password: password, Role: role})
		}

		return len(successes) > 0, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return successes, failures, nil
}

// BulkRemove deletes the named users, skipping admin and unknowns.
func (s *Store) BulkRemove(usernames []string) ([]string, []Failure, error) {
	var (
		successes []string
		failures  []Failure
	)

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		for _, username := range usernames {
			if username == AdminUsername {
				failures = append(failures, Failure{Username: username, Reason: "不能删除管理员"})
				continue
			}

			if _, ok := users[username]; !ok {
				failures = append(failures, Failure{Username: username, Reason: "用户不存在"})
				continue
			}

			delete(users, username)
			successes = append(successes, username)
		}

		return len(successes) > 0, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return successes, failures, nil
}

// BulkResetPasswords assigns fresh random passwords, skipping admin.
func (s *Store) BulkResetPasswords(usernames []string, passwordLength int) ([]Credentials, []Failure, error) {
	var (
		successes []Credentials
		failures  []Failure
	)

	err := s.withLock(func(users map[string]userRecord) (bool, error) {
		for _, username := range usernames {
			if username == AdminUsername {
				failures = append(failures, Failure{Username: username, Reason: "不能重置管理员密码"})
				continue
			}

			r, ok := users[username]
			if !ok {
				failures = append(failures, Failure{Username: username, Reason: "用户不存在"})
				continue
			}

			password := randomPassword(passwordLength)

			hash, err := hashPassword(password)
			if err != nil {
				return false, err
			}

			r.Password = hash
			users[username] = r
			successes = append(successes, Credentials{Username: username, Password: password})
		}

		return len(successes) > 0, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return successes, failures, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	digits       = "0123456789"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + lowerLetters + digits
)

func randomChar(set string) byte {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		panic(err)
	}

	return set[n.Int64()]
}

func randomSuffix() string {
	return string([]byte{randomChar(lowerLetters), randomChar(digits)})
}

func randomPassword(length int) string {
	if length < 6 {
		length = 6
	} else if length > 32 {
		length = 32
	}

	out := make([]byte, length)
	for i := range out {
		out[i] = randomChar(alphanumeric)
	}

	return string(out)
}
