package credential_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omochice/chat-session/internal/credential"
	"github.com/omochice/chat-session/internal/session"
)

var _ session.Credentials = (*credential.Provider)(nil)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestProvider_SaveAndRead(t *testing.T) {
	p := credential.NewProvider(credential.NewMemoryStore())
	token := signedToken(t, time.Now().Add(time.Hour))
	user := credential.User{ID: "u-1", FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com"}

	if err := p.Save(token, user); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got, ok := p.Token(); !ok || got != token {
		t.Errorf("Token() = %q, %v", got, ok)
	}
	if got, ok := p.DisplayName(); !ok || got != "Ana Ruiz" {
		t.Errorf("DisplayName() = %q, %v; want Ana Ruiz", got, ok)
	}
	if got, ok := p.User(); !ok || got != user {
		t.Errorf("User() = %+v, %v", got, ok)
	}
}

func TestProvider_Empty(t *testing.T) {
	p := credential.NewProvider(credential.NewMemoryStore())

	if _, ok := p.Token(); ok {
		t.Error("Token() reported a token in an empty store")
	}
	if _, ok := p.DisplayName(); ok {
		t.Error("DisplayName() reported a name in an empty store")
	}
}

func TestProvider_Token(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  bool
	}{
		{"valid jwt", func(t *testing.T) string { return signedToken(t, time.Now().Add(time.Hour)) }, true},
		{"expired jwt", func(t *testing.T) string { return signedToken(t, time.Now().Add(-time.Hour)) }, false},
		{"opaque token", func(t *testing.T) string { return "opaque-token" }, true},
		{"empty", func(t *testing.T) string { return "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credential.NewMemoryStore()
			store.Set(credential.KeyToken, tt.token(t))

			_, ok := credential.NewProvider(store).Token()
			if ok != tt.want {
				t.Errorf("Token() ok = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestProvider_DisplayName_InvalidUser(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Ana Ruiz"},
		{"no names", `{"id":"u-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credential.NewMemoryStore()
			store.Set(credential.KeyUser, tt.raw)

			if got, ok := credential.NewProvider(store).DisplayName(); ok {
				t.Errorf("DisplayName() = %q, want absent", got)
			}
		})
	}
}

func TestProvider_Clear(t *testing.T) {
	store := credential.NewMemoryStore()
	p := credential.NewProvider(store)
	if err := p.Save("tok", credential.User{FirstName: "Ana", LastName: "Ruiz"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	store.Set("theme", "dark")

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := p.Token(); ok {
		t.Error("token survived Clear")
	}
	if _, ok := p.DisplayName(); ok {
		t.Error("identity survived Clear")
	}
	if _, ok, _ := store.Get("theme"); !ok {
		t.Error("Clear removed unrelated keys")
	}
}

type failingStore struct {
	credential.MemoryStore
	err error
}

func (f *failingStore) Get(string) (string, bool, error) { return "", false, f.err }
func (f *failingStore) Set(string, string) error         { return f.err }
func (f *failingStore) Delete(...string) error           { return f.err }

func TestProvider_StoreErrors(t *testing.T) {
	storeErr := &credential.StoreError{Op: "set", Key: credential.KeyToken, Err: errors.New("read-only")}
	p := credential.NewProvider(&failingStore{err: storeErr})

	if err := p.Save("tok", credential.User{}); !errors.Is(err, storeErr) {
		t.Errorf("Save() error = %v, want %v", err, storeErr)
	}
	if err := p.Clear(); !errors.Is(err, storeErr) {
		t.Errorf("Clear() error = %v, want %v", err, storeErr)
	}
	if _, ok := p.Token(); ok {
		t.Error("Token() reported a token from a failing store")
	}
}

// userRejectingStore accepts everything but the user record.
type userRejectingStore struct {
	*credential.MemoryStore
	err error
}

func (s userRejectingStore) Set(key, value string) error {
	if key == credential.KeyUser {
		return s.err
	}
	return s.MemoryStore.Set(key, value)
}

func TestProvider_Save_RollsBackTokenWhenUserFails(t *testing.T) {
	storeErr := errors.New("disk full")
	store := userRejectingStore{MemoryStore: credential.NewMemoryStore(), err: storeErr}
	p := credential.NewProvider(store)

	if err := p.Save("tok", credential.User{ID: "u-1", FirstName: "Ana", LastName: "Ruiz"}); !errors.Is(err, storeErr) {
		t.Fatalf("Save() error = %v, want %v", err, storeErr)
	}
	if _, ok, _ := store.Get(credential.KeyToken); ok {
		t.Error("token left behind after failed save")
	}
	if _, ok := p.Token(); ok {
		t.Error("Token() reported a token after failed save")
	}
}
