package telnet

import "strings"

// Color classes are the semantic colors selected with ESC ! C<n> !.
// Class 0 always resets to the terminal default.
const (
	ClassNormal = iota
	ClassTitle
	ClassDesc
	ClassPlayer
	ClassNPC
	ClassItem
	ClassSpecial
	ClassAdmin
	ClassExit
	ClassStat
	ClassStatVeryBad
	ClassStatBad
	ClassStatGood
	ClassStatVeryGood
	ClassBold
	ClassTalk
	NumClasses
)

// Inline codes for each class, ready to embed in output text.
const (
	CNormal   = "\033!C0!"
	CTitle    = "\033!C1!"
	CDesc     = "\033!C2!"
	CPlayer   = "\033!C3!"
	CNPC      = "\033!C4!"
	CItem     = "\033!C5!"
	CSpecial  = "\033!C6!"
	CAdmin    = "\033!C7!"
	CExit     = "\033!C8!"
	CStat     = "\033!C9!"
	CStatBad2 = "\033!C10!"
	CStatBad1 = "\033!C11!"
	CGood1    = "\033!C12!"
	CGood2    = "\033!C13!"
	CBold     = "\033!C14!"
	CTalk     = "\033!C15!"
)

// Color values index ANSIColors.
const (
	ColorNormal = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorBrown
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorGrey
	ColorLightBlack
	ColorLightRed
	ColorLightGreen
	ColorYellow
	ColorLightBlue
	ColorLightMagenta
	ColorLightCyan
	ColorWhite
	ColorDarkRed
	ColorDarkGreen
	ColorDarkYellow
	ColorDarkBlue
	ColorDarkMagenta
	ColorDarkCyan
	ColorDarkGrey
	NumColors
)

// ANSINormal resets all attributes.
const ANSINormal = "\033[0m"

// ANSIColors holds the escape sequence for each color value.
var ANSIColors = [NumColors]string{
	ANSINormal,
	"\033[0;30m", "\033[0;31m", "\033[0;32m", "\033[0;33m",
	"\033[0;34m", "\033[0;35m", "\033[0;36m", "\033[0;37m",
	"\033[1;30m", "\033[1;31m", "\033[1;32m", "\033[1;33m",
	"\033[1;34m", "\033[1;35m", "\033[1;36m", "\033[1;37m",
	"\033[2;31m", "\033[2;32m", "\033[2;33m",
	"\033[2;34m", "\033[2;35m", "\033[2;36m", "\033[2;37m",
}

// ColorNames names each color value for configuration and !color output.
var ColorNames = [NumColors]string{
	"normal", "black", "red", "green", "brown", "blue", "magenta", "cyan",
	"grey", "lightblack", "lightred", "lightgreen", "yellow", "lightblue",
	"lightmagenta", "lightcyan", "white", "darkred", "darkgreen",
	"darkyellow", "darkblue", "darkmagenta", "darkcyan", "darkgrey",
}

// ClassNames names each color class.
var ClassNames = [NumClasses]string{
	"normal", "title", "desc", "player", "npc", "item", "special", "admin",
	"exit", "stat", "statvbad", "statbad", "statgood", "statvgood", "bold",
	"talk",
}

// ClassDefaults maps each class to its default color value.
var ClassDefaults = [NumClasses]int{
	ColorNormal, ColorGreen, ColorNormal, ColorMagenta, ColorBrown,
	ColorLightBlue, ColorBrown, ColorRed, ColorCyan, ColorGrey,
	ColorLightRed, ColorYellow, ColorLightCyan, ColorLightGreen,
	ColorBrown, ColorCyan,
}

// ClassRGB is the palette pushed to ZMP clients with color.define.
var ClassRGB = [NumClasses]string{
	"", "#0A0", "", "#A05", "#A50", "#0A0", "#A50", "#500", "#0AF", "",
	"#A00", "#AA5", "#5AF", "#5FA", "#A50", "#05A",
}

// ColorByName looks up a color value by name, case-insensitively.
func ColorByName(name string) (int, bool) {
	for i, n := range ColorNames {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return 0, false
}

// ClassByName looks up a color class by name, case-insensitively.
func ClassByName(name string) (int, bool) {
	for i, n := range ClassNames {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return 0, false
}
