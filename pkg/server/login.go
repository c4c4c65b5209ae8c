package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

// maxLoginTries is the number of failed passphrases before disconnect.
const maxLoginTries = 3

var msgBadAccountName = fmt.Sprintf("Account names must be between %d and %d characters, and consist of only letters and numbers.",
	accounts.MinNameLen, accounts.MaxNameLen)

var msgBadPassphrase = fmt.Sprintf("Passphrases must be at least %d characters, and have both letters and numbers.  Passphrases may also contain symbols or punctuation characters.",
	accounts.MinPassphraseLen)

// loginMode asks for an account name and passphrase.
type loginMode struct {
	sess    *Session
	account *accounts.Account
	pass    bool
	tries   int
}

func newLoginMode(sess *Session) *loginMode {
	return &loginMode{sess: sess}
}

func (m *loginMode) Initialize() error { return nil }

func (m *loginMode) Prompt() {
	if !m.pass {
		m.sess.tel.WriteString("Enter thy name:")
	} else {
		m.sess.tel.WriteString("Enter thy passphrase:")
	}
}

func (m *loginMode) Process(line string) {
	tel := m.sess.tel
	srv := m.sess.srv
	raw := line
	line = strings.TrimSpace(line)

	if strings.EqualFold(line, "quit") {
		tel.Disconnect()
		return
	}

	if !m.pass {
		switch {
		case line == "":
			if srv.cfg.AccountCreation {
				tel.WriteString("\nYou must enter your account name to login or type " + telnet.CBold + "new" + telnet.CNormal + " to begin creating a new account.\n\n")
			} else {
				tel.WriteString("\nYou must enter your account name to login.\n\n")
			}
		case strings.EqualFold(line, "new") || strings.EqualFold(line, "create"):
			if srv.cfg.AccountCreation {
				tel.SetMode(newCreateMode(m.sess))
			} else {
				tel.WriteString("\nNew account creation is disabled.\n\n")
			}
		case !accounts.ValidName(line):
			tel.WriteString("\n" + msgBadAccountName + "\n\n")
		default:
			acct, err := srv.store.Get(line)
			if err != nil && !errors.Is(err, accounts.ErrNotFound) {
				m.sess.logf("Account lookup %q: %v", line, err)
			}
			m.account = acct
			m.pass = true
			tel.SetEcho(false)
		}
		return
	}

	tel.SetEcho(true)
	tel.WriteString("\n")

	var ok bool
	if m.account != nil {
		ok = m.account.CheckPassphrase(raw)
	} else {
		accounts.CheckMissing(raw)
	}
	if !ok {
		srv.metrics.LoginFailure()
		tel.WriteString("\nIncorrect account name or passphrase.\n\n")
		m.tries++
		if m.tries >= maxLoginTries {
			tel.WriteString("\n" + telnet.CAdmin + "Too many login failures: disconnecting." + telnet.CNormal + "\n")
			m.sess.logf("Disconnecting user due to %d failed login attempts", m.tries)
			tel.Disconnect()
			return
		}
		m.account = nil
		m.pass = false
		return
	}

	acct := m.account
	if acct.Disabled {
		tel.WriteString("\n" + telnet.CAdmin + "Your account has been disabled by an administrator." + telnet.CNormal + "\n")
		m.sess.logf("Disabled account '%s' attempted to login", acct.ID)
		m.account = nil
		m.pass = false
		return
	}

	acct.LastLogin = srv.clock()
	acct.LastHost = m.sess.Addr()
	if err := srv.store.Put(acct); err != nil {
		m.sess.logf("Saving account %s: %v", acct.ID, err)
	}
	m.sess.account = acct
	m.sess.logf("Account '%s' logged in from %s", acct.ID, m.sess.Addr())
	tel.SetMode(newMenuMode(m.sess))
}

func (m *loginMode) Shutdown() {
	m.account = nil
}

func (m *loginMode) Finish() {
	m.sess.tel.Disconnect()
}
