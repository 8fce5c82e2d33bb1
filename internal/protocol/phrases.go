package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// SystemAuthor is the author label on server-synthesized notices.
const SystemAuthor = "System"

// Locale selects the language of server-synthesized notices.
type Locale string

// Supported notice locales.
const (
	LocaleKorean  Locale = "ko"
	LocaleEnglish Locale = "en"
)

// Phrasebook holds the notice templates for one locale. Each template takes
// a single %s argument.
type Phrasebook struct {
	Joined     string
	Left       string
	RoomJoined string
	Someone    string
}

var phrasebooks = map[Locale]Phrasebook{
	LocaleKorean: {
		Joined:     "%s 님이 입장했습니다.",
		Left:       "%s 님이 퇴장했습니다.",
		RoomJoined: "%s에 성공적으로 입장했습니다.",
		Someone:    "누군가",
	},
	LocaleEnglish: {
		Joined:     "%s has joined.",
		Left:       "%s has left.",
		RoomJoined: "You joined %s.",
		Someone:    "someone",
	},
}

// noticePattern matches join/leave notices of every supported locale. It is
// the last resort for telling a notice apart from a user message.
var noticePattern = regexp.MustCompile(`님이 입장|님이 퇴장|\bhas joined\.|\bhas left\.`)

// ParseLocale maps a config value to a Locale.
func ParseLocale(value string) (Locale, bool) {
	l := Locale(strings.ToLower(strings.TrimSpace(value)))
	_, ok := phrasebooks[l]
	return l, ok
}

// PhrasebookFor returns the phrasebook for l, defaulting to Korean.
func PhrasebookFor(l Locale) Phrasebook {
	if p, ok := phrasebooks[l]; ok {
		return p
	}
	return phrasebooks[LocaleKorean]
}

// DisplayName returns name, or the placeholder when it is blank.
func (p Phrasebook) DisplayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return p.Someone
	}
	return name
}

// JoinedText renders the notice for name entering a room.
func (p Phrasebook) JoinedText(name string) string {
	return fmt.Sprintf(p.Joined, p.DisplayName(name))
}

// LeftText renders the notice for name leaving a room.
func (p Phrasebook) LeftText(name string) string {
	return fmt.Sprintf(p.Left, p.DisplayName(name))
}

// RoomJoinedText renders the private join acknowledgment.
func (p Phrasebook) RoomJoinedText(roomID string) string {
	return fmt.Sprintf(p.RoomJoined, roomID)
}

// IsSystemAuthor reports whether author is the reserved system identifier.
func IsSystemAuthor(author string) bool {
	return strings.EqualFold(author, SystemAuthor)
}

// IsNoticeText reports whether text reads like a join or leave notice.
func IsNoticeText(text string) bool {
	return noticePattern.MatchString(text)
}

// IsSystem classifies a relayed message. The explicit flag wins, then the
// reserved author, then the notice phrasing.
func (m ChatMessage) IsSystem() bool {
	return m.IsSystemMessage || IsSystemAuthor(m.Author) || IsNoticeText(m.Message)
}
