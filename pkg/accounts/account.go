package accounts

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Account is one player login. Characters are the names of the player's
// characters in creation order.
type Account struct {
	ID         string
	Name       string
	Email      string
	Passphrase []byte
	Characters []string
	Disabled   bool
	// MaxChars caps Characters; zero means the server default.
	MaxChars int
	// Timeout is the idle limit in minutes; zero means the server default.
	Timeout   int
	Created   time.Time
	LastLogin time.Time
	LastHost  string
}

// SetPassphrase stores a bcrypt hash of pass.
func (a *Account) SetPassphrase(pass string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.Passphrase = hash
	return nil
}

// CheckPassphrase reports whether pass matches. An empty pass never matches.
func (a *Account) CheckPassphrase(pass string) bool {
	if pass == "" || len(a.Passphrase) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.Passphrase, []byte(pass)) == nil
}

// missingHash stands in for the hash of an account that does not exist.
var missingHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("no such account"), bcrypt.DefaultCost)
	return hash
})

// CheckMissing does the work of CheckPassphrase for an account name that
// matched nothing, so both cases take the same time. It never matches.
func CheckMissing(pass string) bool {
	if pass != "" {
		bcrypt.CompareHashAndPassword(missingHash(), []byte(pass))
	}
	return false
}

// AddCharacter appends name unless it is already listed.
func (a *Account) AddCharacter(name string) {
	if slices.Contains(a.Characters, name) {
		return
	}
	a.Characters = append(a.Characters, name)
}

// RemoveCharacter drops name and reports whether it was listed.
func (a *Account) RemoveCharacter(name string) bool {
	i := slices.Index(a.Characters, name)
	if i < 0 {
		return false
	}
	a.Characters = slices.Delete(a.Characters, i, i+1)
	return true
}

// CharLimit returns the character cap, using def when none is set.
func (a *Account) CharLimit(def int) int {
	if a.MaxChars > 0 {
		return a.MaxChars
	}
	return def
}
