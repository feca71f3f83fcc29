// Package auth registers players, verifies passwords and issues session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
)

const (
	defaultSecret   = "fluffy cat"
	defaultTokenTTL = 24 * time.Hour
)

var errTokenExpired = errors.New("token expired")

type account struct {
	user model.User
	hash []byte
}

// Directory is an in-memory user registry.
type Directory struct {
	mu     sync.RWMutex
	byID   map[string]*account
	byName map[string]*account

	secret []byte
	ttl    time.Duration
	cost   int
	clock  clockwork.Clock
	newID  func() string
	logger logger.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		byID:   make(map[string]*account),
		byName: make(map[string]*account),
		secret: []byte(defaultSecret),
		ttl:    defaultTokenTTL,
		cost:   bcrypt.DefaultCost,
		clock:  clockwork.NewRealClock(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("auth")
	}
	return d
}

// CreateOrLogin registers username on first use, otherwise checks the
// password. Either way a fresh session token is returned.
func (d *Directory) CreateOrLogin(ctx context.Context, username, password string) (model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Session{}, fmt.Errorf("%w: username and password are required", model.ErrInvalidInput)
	}

	d.mu.RLock()
	acc, ok := d.byName[username]
	d.mu.RUnlock()

	if ok {
		if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
			return model.Session{}, model.ErrInvalidCredentials
		}
		return d.session(acc.user)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return model.Session{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	if existing, ok := d.byName[username]; ok {
		// registered concurrently; fall back to a login
		d.mu.Unlock()
		if err := bcrypt.CompareHashAndPassword(existing.hash, []byte(password)); err != nil {
			return model.Session{}, model.ErrInvalidCredentials
		}
		return d.session(existing.user)
	}
	acc = &account{
		user: model.User{ID: d.newID(), Username: username, Role: RoleFor(username)},
		hash: hash,
	}
	d.byID[acc.user.ID] = acc
	d.byName[username] = acc
	d.mu.Unlock()

	d.logger.Info(ctx, "user registered",
		logger.String("user_id", acc.user.ID),
		logger.String("role", string(acc.user.Role)),
	)
	return d.session(acc.user)
}

// GetUser returns the public record of id.
func (d *Directory) GetUser(ctx context.Context, id string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrUserNotFound)
	}
	return acc.user, nil
}

// CurrentUser resolves a session token to its user.
func (d *Directory) CurrentUser(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrUnauthorized
	}
	c := &claims{now: d.clock.Now()}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil {
		d.logger.Debug(ctx, "token rejected", logger.Error(err))
		return model.User{}, model.ErrUnauthorized
	}

	u, err := d.GetUser(ctx, c.Subject)
	if err != nil {
		return model.User{}, model.ErrUnauthorized
	}
	return u, nil
}

// Count returns the number of registered users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *Directory) session(u model.User) (model.Session, error) {
	now := d.clock.Now()
	c := &claims{
		Subject:   u.ID,
		Username:  u.Username,
		Role:      u.Role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(d.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(d.secret)
	if err != nil {
		return model.Session{}, fmt.Errorf("sign token: %w", err)
	}
	return model.Session{User: u, Token: token}, nil
}

// claims validates expiry against the directory clock carried in now.
type claims struct {
	Subject   string     `json:"sub"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	IssuedAt  int64      `json:"iat"`
	ExpiresAt int64      `json:"exp"`

	now time.Time
}

func (c *claims) Valid() error {
	if c.Subject == "" {
		return model.ErrUnauthorized
	}
	if c.ExpiresAt != 0 && !c.now.Before(time.Unix(c.ExpiresAt, 0)) {
		return errTokenExpired
	}
	return nil
}
