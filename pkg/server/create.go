package server

import (
	"errors"
	"strings"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

type createState int

const (
	createID createState = iota
	createName
	createEmail
	createPass
	createCheckPass
	createApprove
)

// createMode walks a new player through opening an account.
type createMode struct {
	sess  *Session
	state createState

	id, name, email, passphrase string
}

func newCreateMode(sess *Session) *createMode {
	return &createMode{sess: sess}
}

func (m *createMode) Initialize() error {
	m.state = createID
	m.showInfo()
	return nil
}

func (m *createMode) showInfo() {
	tel := m.sess.tel
	tel.ClearScreen()
	tel.WriteString("Account Information\n")
	tel.WriteString("-------------------\n")
	if m.id != "" {
		tel.WriteString("Account name:   " + telnet.CPlayer + m.id + telnet.CNormal + "\n")
	}
	if m.name != "" {
		tel.WriteString("Real name:      " + m.name + "\n")
	}
	if m.email != "" {
		tel.WriteString("E-mail address: " + m.email + "\n")
	}
	tel.WriteString("\n")
}

func (m *createMode) Prompt() {
	var p string
	switch m.state {
	case createID:
		p = "Enter a name for your account:"
	case createName:
		p = "Enter your full, *real life* name:"
	case createEmail:
		p = "Enter your e-mail address:"
	case createPass:
		p = "Enter a passphrase:"
	case createCheckPass:
		p = "Retype your passphrase:"
	case createApprove:
		p = "Is this correct? (Y/n)"
	}
	m.sess.tel.WriteString(p)
}

func (m *createMode) Process(line string) {
	tel := m.sess.tel
	srv := m.sess.srv

	switch m.state {
	case createID:
		line = strings.TrimSpace(line)
		if !accounts.ValidName(line) {
			tel.WriteString("\n" + telnet.CAdmin + msgBadAccountName + telnet.CNormal + "\n")
			return
		}
		if srv.store.Exists(line) {
			tel.WriteString("\n" + telnet.CAdmin + "The account name '" + line + "' is already in use." + telnet.CNormal + "\n")
			return
		}
		m.id = line
		m.state = createName
		m.showInfo()

	case createName:
		if line = strings.TrimSpace(line); line != "" {
			m.name = line
		}
		if m.name != "" {
			m.state = createEmail
			m.showInfo()
		}

	case createEmail:
		if line = strings.TrimSpace(line); line != "" {
			if accounts.ValidEmail(line) {
				m.email = line
				tel.SetEcho(false)
			} else {
				m.email = ""
				tel.WriteString(telnet.CAdmin + "That is not a valid e-mail address." + telnet.CNormal + "\n")
			}
		}
		if m.email != "" {
			m.state = createPass
			m.showInfo()
		}

	case createPass:
		if !accounts.ValidPassphrase(line) {
			tel.WriteString("\n" + telnet.CAdmin + msgBadPassphrase + telnet.CNormal + "\n")
			return
		}
		m.passphrase = line
		m.state = createCheckPass
		m.showInfo()

	case createCheckPass:
		if line != m.passphrase {
			tel.WriteString("\n" + telnet.CAdmin + "Passwords do not match." + telnet.CNormal + "\n")
			m.state = createPass
			return
		}
		m.state = createApprove
		m.showInfo()
		tel.SetEcho(true)

	case createApprove:
		line = strings.TrimSpace(line)
		switch {
		case line == "" || matches("yes", line):
			acct, err := srv.store.Create(m.id, m.name, m.email, m.passphrase)
			if errors.Is(err, accounts.ErrExists) {
				tel.WriteString("\n" + telnet.CAdmin + "The account name '" + m.id + "' is already in use." + telnet.CNormal + "\n")
				m.state = createID
				return
			}
			if err != nil {
				m.sess.logf("Creating account %s: %v", m.id, err)
				tel.WriteString("\n" + telnet.CAdmin + "Internal error; could not create your account." + telnet.CNormal + "\n")
				m.state = createID
				return
			}
			m.passphrase = ""
			m.sess.account = acct
			m.sess.logf("New account '%s' created from %s", acct.ID, m.sess.Addr())
			tel.SetMode(newMenuMode(m.sess))
		case matches("no", line):
			m.state = createID
			m.showInfo()
		}
	}
}

func (m *createMode) Shutdown() {
	if m.state == createPass || m.state == createCheckPass {
		m.sess.tel.SetEcho(true)
	}
	m.passphrase = ""
}

func (m *createMode) Finish() {
	m.sess.tel.Disconnect()
}
