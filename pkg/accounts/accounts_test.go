package accounts

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"bob", true},
		{"Player42", true},
		{"ab", false},
		{"abcdefghijklmnop", false},
		{"abcdefghijklmno", true},
		{"bad name", false},
		{"bad-name", false},
		{"", false},
		{"héllo", false},
	}
	for _, tt := range tests {
		if got := ValidName(tt.name); got != tt.want {
			t.Errorf("ValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidPassphrase(t *testing.T) {
	tests := []struct {
		pass string
		want bool
	}{
		{"abc123", true},
		{"abc12", false},
		{"abcdefgh", false},
		{"12345678", false},
		{"open sesame 9!", true},
	}
	for _, tt := range tests {
		if got := ValidPassphrase(tt.pass); got != tt.want {
			t.Errorf("ValidPassphrase(%q) = %v, want %v", tt.pass, got, tt.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"bob@example.com", true},
		{"bob@localhost", false},
		{"Bob <bob@example.com>", false},
		{"bob", false},
		{"bob@example.", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidEmail(tt.email); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize(" Bob ") != Normalize("BOB") {
		t.Error("Normalize is not case-insensitive")
	}
}

func TestPassphrase(t *testing.T) {
	var a Account
	if a.CheckPassphrase("anything1") {
		t.Error("account without a passphrase matched")
	}
	if err := a.SetPassphrase("secret99"); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	if !a.CheckPassphrase("secret99") {
		t.Error("correct passphrase rejected")
	}
	if a.CheckPassphrase("secret98") || a.CheckPassphrase("") {
		t.Error("wrong passphrase accepted")
	}
}

func TestCheckMissing(t *testing.T) {
	if CheckMissing("secret99") {
		t.Error("CheckMissing matched")
	}
	cost, err := bcrypt.Cost(missingHash())
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("missing-account hash cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestCharacters(t *testing.T) {
	var a Account
	a.AddCharacter("Ayla")
	a.AddCharacter("Bram")
	a.AddCharacter("Ayla")
	if !slices.Equal(a.Characters, []string{"Ayla", "Bram"}) {
		t.Errorf("Characters = %v", a.Characters)
	}
	if !a.RemoveCharacter("Ayla") || a.RemoveCharacter("Ayla") {
		t.Error("RemoveCharacter result wrong")
	}
	if a.CharLimit(3) != 3 {
		t.Error("default limit not used")
	}
	a.MaxChars = 5
	if a.CharLimit(3) != 5 {
		t.Error("account limit not used")
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := openTestStore(t)

	acct, err := s.Create("Bob", "Bob Smith", "bob@example.com", "secret99")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if acct.Created.IsZero() {
		t.Error("Created not stamped")
	}
	if _, err := s.Create("bob", "Other", "", "secret99"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create err = %v, want ErrExists", err)
	}
	if _, err := s.Create("x", "", "", "secret99"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("invalid Create err = %v, want ErrInvalidName", err)
	}
	if !s.Exists("BOB") {
		t.Error("Exists is case-sensitive")
	}

	got, err := s.Get("bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "Bob" || got.Email != "bob@example.com" || !got.CheckPassphrase("secret99") {
		t.Errorf("Get = %+v", got)
	}

	got.AddCharacter("Ayla")
	got.Disabled = true
	if err := s.Put(got); err != nil {
		t.Fatalf("Put: %v", err)
	}
	again, _ := s.Get("Bob")
	if !again.Disabled || len(again.Characters) != 1 {
		t.Errorf("Put not persisted: %+v", again)
	}

	s.Create("Carol", "", "", "secret99")
	ids, err := s.List()
	if err != nil || !slices.Equal(ids, []string{"Bob", "Carol"}) {
		t.Errorf("List = %v, %v", ids, err)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d", s.Count())
	}

	if err := s.Delete("bob"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
	if _, err := s.Get("bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete err = %v", err)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Create("Dana", "Dana", "", "secret99")
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if !s.Exists("dana") {
		t.Error("account lost across reopen")
	}
}

func TestCharNames(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ayla", true},
		{"Ay", false},
		{"ayla2", false},
		{"abcdefghijklmnop", false},
	}
	for _, tt := range tests {
		if got := ValidCharName(tt.name); got != tt.want {
			t.Errorf("ValidCharName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if got := CharName("aYLA"); got != "Ayla" {
		t.Errorf("CharName = %q, want Ayla", got)
	}
}

func TestStoreCharacters(t *testing.T) {
	s := openTestStore(t)
	bob, _ := s.Create("Bob", "", "", "secret99")
	carol, _ := s.Create("Carol", "", "", "secret99")

	if err := s.AddCharacter(bob, "Ayla", 2); err != nil {
		t.Fatalf("AddCharacter: %v", err)
	}
	if err := s.AddCharacter(carol, "ayla", 2); !errors.Is(err, ErrCharExists) {
		t.Errorf("duplicate character err = %v, want ErrCharExists", err)
	}
	if owner, ok := s.CharacterOwner("AYLA"); !ok || owner != "Bob" {
		t.Errorf("CharacterOwner = %q, %v", owner, ok)
	}
	s.AddCharacter(bob, "Bram", 2)
	if err := s.AddCharacter(bob, "Cole", 2); !errors.Is(err, ErrCharLimit) {
		t.Errorf("over limit err = %v, want ErrCharLimit", err)
	}

	stored, _ := s.Get("bob")
	if !slices.Equal(stored.Characters, []string{"Ayla", "Bram"}) {
		t.Errorf("stored characters = %v", stored.Characters)
	}

	if err := s.RemoveCharacter(bob, "Ayla"); err != nil {
		t.Fatalf("RemoveCharacter: %v", err)
	}
	if _, ok := s.CharacterOwner("Ayla"); ok {
		t.Error("name not released")
	}

	s.Delete("Bob")
	if _, ok := s.CharacterOwner("Bram"); ok {
		t.Error("Delete did not release character names")
	}
}

func TestStoreCharactersRollback(t *testing.T) {
	s := openTestStore(t)
	// An ID over bbolt's key size limit makes the account write fail
	// after the character name has been claimed in the same transaction.
	acct := &Account{ID: strings.Repeat("x", 40000)}

	if err := s.AddCharacter(acct, "Ayla", 0); err == nil {
		t.Fatal("AddCharacter succeeded with an unstorable account")
	}
	if len(acct.Characters) != 0 {
		t.Errorf("characters after failed add = %v", acct.Characters)
	}
	if _, ok := s.CharacterOwner("Ayla"); ok {
		t.Error("character name claimed by a rolled back transaction")
	}

	acct.Characters = []string{"Bram"}
	if err := s.RemoveCharacter(acct, "Bram"); err == nil {
		t.Fatal("RemoveCharacter succeeded with an unstorable account")
	}
	if !slices.Equal(acct.Characters, []string{"Bram"}) {
		t.Errorf("characters after failed remove = %v", acct.Characters)
	}
}

func TestStoreSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "accounts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.Create("erin", "Erin", "", "secret99"); err != nil {
		t.Fatal(err)
	}

	copyPath := filepath.Join(dir, "copy.db")
	if err := s.Snapshot(copyPath); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	c, err := Open(copyPath)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer c.Close()
	if !c.Exists("erin") || c.Count() != 1 {
		t.Error("snapshot missing account")
	}
}
