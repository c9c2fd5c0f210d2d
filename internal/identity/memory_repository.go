package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users []User
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.AccountVerified && r.verifiedConflict(user) {
		return ErrDuplicate
	}
	r.users = append(r.users, clone(user))
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == id {
			return clone(u), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindVerified(_ context.Context, email, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.AccountVerified && (u.Email == email || u.Phone == phone) {
			return clone(u), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindVerifiedByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.AccountVerified && u.Email == email {
			return clone(u), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) CountUnverified(_ context.Context, email, phone string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, u := range r.users {
		if !u.AccountVerified && (u.Email == email || u.Phone == phone) {
			n++
		}
	}
	return n, nil
}

// LatestUnverified breaks createdAt ties by insertion order.
func (r *memoryRepository) LatestUnverified(_ context.Context, email, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := -1
	for i, u := range r.users {
		if u.AccountVerified || (u.Email != email && u.Phone != phone) {
			continue
		}
		if found < 0 || !u.CreatedAt.Before(r.users[found].CreatedAt) {
			found = i
		}
	}
	if found < 0 {
		return User{}, ErrNotFound
	}
	return clone(r.users[found]), nil
}

func (r *memoryRepository) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != tokenHash {
			continue
		}
		if u.ResetPasswordExpire != nil && u.ResetPasswordExpire.After(now) {
			return clone(u), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID != user.ID {
			continue
		}
		if user.AccountVerified && r.verifiedConflict(user) {
			return ErrDuplicate
		}
		user.CreatedAt = u.CreatedAt
		r.users[i] = clone(user)
		return nil
	}
	return ErrNotFound
}

func (r *memoryRepository) SetResetToken(_ context.Context, id, tokenHash string, expire time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == id {
			r.users[i].ResetPasswordToken = &tokenHash
			r.users[i].ResetPasswordExpire = &expire
			return nil
		}
	}
	return ErrNotFound
}

// verifiedConflict reports whether another verified user holds the email or phone.
// Callers must hold the write lock.
func (r *memoryRepository) verifiedConflict(user User) bool {
	for _, u := range r.users {
		if u.ID != user.ID && u.AccountVerified && (u.Email == user.Email || u.Phone == user.Phone) {
			return true
		}
	}
	return false
}

// clone copies the pointer fields so callers cannot mutate stored state.
func clone(u User) User {
	if u.VerificationCode != nil {
		v := *u.VerificationCode
		u.VerificationCode = &v
	}
	if u.VerificationCodeExpire != nil {
		t := *u.VerificationCodeExpire
		u.VerificationCodeExpire = &t
	}
	if u.ResetPasswordToken != nil {
		s := *u.ResetPasswordToken
		u.ResetPasswordToken = &s
	}
	if u.ResetPasswordExpire != nil {
		t := *u.ResetPasswordExpire
		u.ResetPasswordExpire = &t
	}
	if u.PasswordHash != nil {
		u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	return u
}
