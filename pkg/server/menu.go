package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/telnet"
)

type menuState int

const (
	menuMain menuState = iota
	menuPlaySelect
	menuCreateSelect
	menuDeleteSelect
	menuDeleteConfirm
	menuAccount
	menuChangeName
	menuChangeEmail
	menuPassChallenge
	menuPassSelect
	menuPassConfirm
)

const deleteConfirmation = "I am sure!"

// menuMode is the account menu shown between login and play.
type menuMode struct {
	sess  *Session
	state menuState
	tmp   string
}

func newMenuMode(sess *Session) *menuMode {
	return &menuMode{sess: sess}
}

func (m *menuMode) account() *accounts.Account { return m.sess.account }

func (m *menuMode) Initialize() error {
	if m.account() == nil {
		return errors.New("menu without an account")
	}
	if t := m.account().Timeout; t != 0 {
		m.sess.tel.SetTimeout(time.Duration(t) * time.Minute)
	}
	m.state = menuMain
	m.showMain()
	return nil
}

func (m *menuMode) showBanner() {
	tel := m.sess.tel
	tel.ClearScreen()
	tel.WriteString(telnet.CTitle + m.sess.srv.cfg.MudName + telnet.CNormal + "\n\n")
	name := m.account().Name
	if name == "" {
		name = m.account().ID
	}
	tel.WriteString("Greetings, " + telnet.CPlayer + name + telnet.CNormal + "!\n\n")
}

func (m *menuMode) showMain() {
	m.showBanner()
	tel := m.sess.tel
	tel.WriteString(" 1) Play\n")
	tel.WriteString(" 2) Create new character\n")
	tel.WriteString(" 3) Account details\n")
	tel.WriteString(" 4) Delete character\n")
	tel.WriteString(" 5) Quit\n")
	tel.WriteString("\n")
}

func (m *menuMode) showChars() {
	m.showBanner()
	tel := m.sess.tel
	tel.WriteString("Your available characters:\n\n")
	chars := m.account().Characters
	for i, name := range chars {
		tel.Printf(" %d) "+telnet.CPlayer+"%s"+telnet.CNormal+"\n", i+1, name)
	}
	tel.Printf(" %d) Return to main menu\n", len(chars)+1)
	if len(chars) == 0 {
		tel.WriteString("\nYou do not have any characters created yet.\n")
	}
	tel.WriteString("\n")
}

func (m *menuMode) showCreate() {
	m.showBanner()
	m.sess.tel.WriteString("Enter the name of your new character, or type " + telnet.CBold + "return" + telnet.CNormal + " to return to the main menu.\n\n")
}

func (m *menuMode) showAccount() {
	m.showBanner()
	tel := m.sess.tel
	tel.WriteString(" 1) Name:   " + m.account().Name + "\n")
	tel.WriteString(" 2) E-Mail: " + m.account().Email + "\n")
	tel.WriteString(" 3) Passphrase\n")
	tel.WriteString(" 4) Return to main menu\n")
	tel.WriteString("\n")
}

func (m *menuMode) Prompt() {
	var p string
	switch m.state {
	case menuMain, menuAccount:
		p = "Select:"
	case menuPlaySelect:
		p = "Character to play:"
	case menuCreateSelect:
		p = "New character's name:"
	case menuDeleteSelect:
		p = "Character to delete:"
	case menuDeleteConfirm:
		p = "Confirm:"
	case menuChangeName:
		p = "Your real-life name:"
	case menuChangeEmail:
		p = "Your e-mail address:"
	case menuPassChallenge:
		p = "Your current passphrase:"
	case menuPassSelect:
		p = "New passphrase:"
	case menuPassConfirm:
		p = "Confirm passphrase:"
	}
	m.sess.tel.WriteString(p)
}

// pickChar resolves a menu number or character name. It returns -1 for
// the "return" entry and -2 when nothing matches.
func (m *menuMode) pickChar(line string) int {
	chars := m.account().Characters
	n, err := strconv.Atoi(line)
	if err == nil && n == len(chars)+1 || matches("return", line) {
		return -1
	}
	for i, name := range chars {
		if (err == nil && n == i+1) || matches(name, line) {
			return i
		}
	}
	return -2
}

func (m *menuMode) toMain(msg string) {
	m.state = menuMain
	m.showMain()
	if msg != "" {
		m.sess.tel.WriteString(msg)
	}
}

func (m *menuMode) toAccount(msg string) {
	m.state = menuAccount
	m.showAccount()
	if msg != "" {
		m.sess.tel.WriteString(msg)
	}
}

func (m *menuMode) save() {
	if err := m.sess.srv.store.Put(m.account()); err != nil {
		m.sess.logf("Saving account %s: %v", m.account().ID, err)
	}
}

func (m *menuMode) Process(line string) {
	tel := m.sess.tel
	srv := m.sess.srv
	acct := m.account()
	switch m.state {
	case menuPassChallenge, menuPassSelect, menuPassConfirm:
	default:
		line = strings.TrimSpace(line)
	}

	switch m.state {
	case menuMain:
		switch {
		case line == "":
			m.showMain()
		case line == "1" || matches("play", line):
			m.state = menuPlaySelect
			m.showChars()
		case line == "2" || matches("create", line):
			if n := acct.CharLimit(srv.cfg.CharsPerAccount); n > 0 && len(acct.Characters) >= n {
				m.toMain("You already have the maximum number of characters allowed.\n\n")
				return
			}
			m.state = menuCreateSelect
			m.showCreate()
		case line == "3" || matches("account", line):
			m.toAccount("")
		case line == "4" || matches("delete", line):
			m.state = menuDeleteSelect
			m.showChars()
		case line == "5" || matches("quit", line) || matches("exit", line):
			tel.WriteString("\n" + textOr(srv.texts.Quit(), "Farewell.\n"))
			tel.Disconnect()
		default:
			m.toMain("I don't understand.\n\n")
		}

	case menuPlaySelect:
		i := m.pickChar(line)
		switch {
		case i == -1:
			m.toMain("")
		case i < 0:
			m.toMain("Invalid character.\n\n")
		case srv.playing(acct.Characters[i]) != nil:
			m.toMain("That character is already playing.\n\n")
		default:
			tel.SetMode(newPlayMode(m.sess, acct.Characters[i]))
		}

	case menuCreateSelect:
		if line == "" || matches("return", line) {
			m.toMain("")
			return
		}
		if !accounts.ValidCharName(line) {
			m.showCreate()
			tel.Printf("Character names must be between %d and %d characters long, and may consist only of letters.\n\n",
				accounts.MinNameLen, accounts.MaxNameLen)
			return
		}
		name := accounts.CharName(line)
		err := srv.store.AddCharacter(acct, name, srv.cfg.CharsPerAccount)
		switch {
		case errors.Is(err, accounts.ErrCharExists):
			m.showCreate()
			tel.WriteString("A character named " + telnet.CPlayer + name + telnet.CNormal + " already exists.\n\n")
		case errors.Is(err, accounts.ErrCharLimit):
			m.toMain("You already have the maximum number of characters allowed.\n\n")
		case err != nil:
			m.sess.logf("Creating character %s: %v", name, err)
			m.toMain(telnet.CAdmin + "Internal error; could not create character." + telnet.CNormal + "\n\n")
		default:
			m.sess.logf("Account '%s' created character '%s'", acct.ID, name)
			tel.SetMode(newPlayMode(m.sess, name))
		}

	case menuDeleteSelect:
		i := m.pickChar(line)
		switch {
		case i == -1:
			m.toMain("")
		case i < 0:
			m.toMain("Invalid character.\n\n")
		default:
			m.tmp = acct.Characters[i]
			m.state = menuDeleteConfirm
			m.showBanner()
			tel.WriteString("Do you wish to delete " + telnet.CPlayer + m.tmp + telnet.CNormal + "?\n\n")
			tel.WriteString(telnet.CAdmin + "Warning!!" + telnet.CNormal + "  If you delete a character, you will " + telnet.CAdmin + "not" + telnet.CNormal + " be able to get the character back, ever.\n\n")
			tel.WriteString("To confirm the deletion of this character, you must type " + telnet.CBold + deleteConfirmation + telnet.CNormal + " with that exact spelling, punctuation, and capitalization.  If you do not wish to delete this character, simply press enter/return.\n\n")
		}

	case menuDeleteConfirm:
		name := m.tmp
		m.tmp = ""
		if line != deleteConfirmation {
			m.toMain("Your character has not been deleted.\n\n")
			return
		}
		if srv.playing(name) != nil {
			m.toMain("That character is currently playing.\n\n")
			return
		}
		if err := srv.store.RemoveCharacter(acct, name); err != nil {
			m.sess.logf("Deleting character %s: %v", name, err)
			m.toMain("Internal error; could not delete character.\n\n")
			return
		}
		m.sess.logf("Account '%s' deleted player '%s'", acct.ID, name)
		m.toMain("Character " + telnet.CPlayer + name + telnet.CNormal + " has been permanently deleted.\n\n")

	case menuAccount:
		switch {
		case line == "1" || matches("name", line):
			m.state = menuChangeName
			m.showBanner()
			tel.WriteString("Current name: " + acct.Name + ".\n\n")
			tel.WriteString("You may correct your real-life name registered with this account.  To leave your name unchanged, do not enter any text and simply press return/enter.\n\n")
		case line == "2" || matches("email", line):
			m.state = menuChangeEmail
			m.showBanner()
			tel.WriteString("Current email address: " + acct.Email + ".\n\n")
			tel.WriteString("You may correct the email address registered with this account.  To leave your email address unchanged, do not enter any text and simply press return/enter.\n\n")
		case line == "3" || matches("passphrase", line):
			m.state = menuPassChallenge
			m.showBanner()
			tel.WriteString("You must enter your current passphrase before you may select a new one.\n\n")
			tel.SetEcho(false)
		case line == "" || line == "4" || matches("return", line):
			m.toMain("")
		default:
			m.toAccount("I don't understand.\n\n")
		}

	case menuChangeName:
		if line == "" {
			m.toAccount("")
			return
		}
		acct.Name = line
		m.save()
		m.toAccount("Your name has been changed.\n\n")

	case menuChangeEmail:
		switch {
		case line == "":
			m.toAccount("")
		case !accounts.ValidEmail(line):
			m.toAccount("That is not a valid e-mail address.\n\n")
		default:
			acct.Email = line
			m.save()
			m.toAccount("Your email address has been changed.\n\n")
		}

	case menuPassChallenge:
		if !acct.CheckPassphrase(line) {
			srv.metrics.LoginFailure()
			tel.SetEcho(true)
			m.toAccount("Passphrase incorrect.\n\n")
			return
		}
		m.state = menuPassSelect
		m.showBanner()
		tel.WriteString("You may now enter a new passphrase.\n\n")

	case menuPassSelect:
		if !accounts.ValidPassphrase(line) {
			tel.SetEcho(true)
			m.toAccount(msgBadPassphrase + "\n\n")
			return
		}
		m.tmp = line
		m.state = menuPassConfirm
		m.showBanner()
		tel.WriteString("You must now retype your passphrase to confirm that you have entered it correctly.\n\n")

	case menuPassConfirm:
		tel.SetEcho(true)
		pass := m.tmp
		m.tmp = ""
		if line != pass {
			m.toAccount("Passphrases do not match.\n\n")
			return
		}
		if err := acct.SetPassphrase(pass); err != nil {
			m.sess.logf("Hashing passphrase for %s: %v", acct.ID, err)
			m.toAccount("Internal error; passphrase not changed.\n\n")
			return
		}
		m.save()
		m.toAccount("Your account passphrase has been changed.\n\n")
	}
}

func (m *menuMode) Shutdown() {
	switch m.state {
	case menuPassChallenge, menuPassSelect, menuPassConfirm:
		m.sess.tel.SetEcho(true)
	}
	m.tmp = ""
}

func (m *menuMode) Finish() {
	m.sess.tel.Disconnect()
}

func (m *menuMode) String() string {
	return fmt.Sprintf("menu(%s)", m.account().ID)
}
