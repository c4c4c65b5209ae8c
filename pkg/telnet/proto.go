// Package telnet is the terminal engine behind every player connection: the
// option negotiation codec, line assembly, the word-wrapping color-aware
// output formatter and the hooks that hand complete lines to a Mode.
package telnet

import "strconv"

// Telnet protocol commands.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	GA   byte = 249 // Go Ahead
	EL   byte = 248 // Erase Line
	EC   byte = 247 // Erase Character
	NOP  byte = 241
	SE   byte = 240 // Subnegotiation End
	EOR  byte = 239 // End Of Record
)

// Telnet options the engine negotiates.
const (
	TeloptEcho       byte = 1
	TeloptTType      byte = 24
	TeloptEOR        byte = 25
	TeloptNAWS       byte = 31
	TeloptNewEnviron byte = 39
	TeloptMSSP       byte = 70 // MUD Server Status Protocol
	TeloptCompress2  byte = 86 // MCCP2
	TeloptZMP        byte = 93
)

// TTYPE and NEW-ENVIRON subnegotiation codes.
const (
	TTypeIS   byte = 0
	TTypeSend byte = 1

	EnvIS      byte = 0
	EnvSend    byte = 1
	EnvInfo    byte = 2
	EnvVar     byte = 0
	EnvValue   byte = 1
	EnvEsc     byte = 2
	EnvUserVar byte = 3

	MSSPVar byte = 1
	MSSPVal byte = 2
)

// OptionName returns a printable name for debug logs.
func OptionName(opt byte) string {
	switch opt {
	case TeloptEcho:
		return "ECHO"
	case TeloptTType:
		return "TTYPE"
	case TeloptEOR:
		return "EOR"
	case TeloptNAWS:
		return "NAWS"
	case TeloptNewEnviron:
		return "NEW-ENVIRON"
	case TeloptMSSP:
		return "MSSP"
	case TeloptCompress2:
		return "COMPRESS2"
	case TeloptZMP:
		return "ZMP"
	}
	return "OPT" + strconv.Itoa(int(opt))
}
