package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// memDirectory is an in-memory UserDirectory for tests.
type memDirectory struct {
	mu      sync.Mutex
	byID    map[string]Principal
	byEmail map[string]string
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byID:    make(map[string]Principal),
		byEmail: make(map[string]string),
	}
}

func (d *memDirectory) GetByEmail(_ context.Context, email string) (Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return d.byID[id], nil
}

func (d *memDirectory) GetByID(_ context.Context, id string) (Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (d *memDirectory) Create(_ context.Context, p Principal) (Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(p.Email)
	if _, exists := d.byEmail[key]; exists {
		return Principal{}, ErrBusinessConflict
	}
	d.byID[p.ID] = p
	d.byEmail[key] = p.ID
	return p, nil
}

func (d *memDirectory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return d.mutate(id, func(p *Principal) { p.PasswordHash = hash })
}

func (d *memDirectory) SetMFASecret(_ context.Context, id, secret string) error {
	return d.mutate(id, func(p *Principal) { p.MFASecret = secret })
}

func (d *memDirectory) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	return d.mutate(id, func(p *Principal) { p.MFAEnabled = enabled })
}

func (d *memDirectory) ClearMFA(_ context.Context, id string) error {
	return d.mutate(id, func(p *Principal) {
		p.MFASecret = ""
		p.MFAEnabled = false
	})
}

func (d *memDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(d.byID, id)
	delete(d.byEmail, strings.ToLower(p.Email))
	return nil
}

func (d *memDirectory) mutate(id string, apply func(*Principal)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	apply(&p)
	d.byID[id] = p
	return nil
}

// plainHasher keeps engine tests fast; the argon2id hasher has its own
// package tests.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) {
	return "plain:" + plain, nil
}

func (plainHasher) Verify(plain, encoded string) (bool, error) {
	return encoded == "plain:"+plain, nil
}

type stubMailer struct {
	mu     sync.Mutex
	emails []string
	tokens []string
}

func (m *stubMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *stubMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		t.Fatal("no reset token was mailed")
	}
	return m.tokens[len(m.tokens)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *memDirectory, *stubMailer, func()) {
	t.Helper()

	mr, client := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	directory := newMemDirectory()
	mailer := &stubMailer{}

	engine, err := NewBuilder().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(directory).
		WithHasher(plainHasher{}).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	done := func() {
		engine.Close()
		_ = client.Close()
		mr.Close()
	}
	return engine, directory, mailer, done
}

func seedPrincipal(t *testing.T, directory *memDirectory, id, email string, role Role) Principal {
	t.Helper()
	p, err := directory.Create(context.Background(), Principal{
		ID:           id,
		Name:         "Test User",
		Email:        email,
		PasswordHash: "plain:correct-password",
		Role:         role,
		CompanyID:    "c1",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed principal failed: %v", err)
	}
	return p
}

func testClientCtx(ip string) context.Context {
	return WithClientInfo(context.Background(), ClientInfo{
		IP:         ip,
		DeviceType: "DESKTOP",
		Browser:    "Chrome",
		OS:         "Linux",
	})
}
