package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("agent not found")
	ErrInvalidID     = errors.New("invalid agent id")
	ErrInvalidRegion = errors.New("invalid region")
	ErrInvalidKind   = errors.New("invalid agent type")
)

// ID is an AX identifier of the form AX-{U|S}-{REGION}-{NNNN}.
type ID string

func (id ID) String() string { return string(id) }

// Kind distinguishes personal assistants from skill agents.
type Kind string

const (
	KindPersonal Kind = "personal"
	KindSkill    Kind = "skill"
)

// Prefix is the single-letter code embedded in an ID.
func (k Kind) Prefix() string {
	if k == KindSkill {
		return "S"
	}
	return "U"
}

func (k Kind) Valid() bool { return k == KindPersonal || k == KindSkill }

func kindFromPrefix(p string) Kind {
	if p == "S" {
		return KindSkill
	}
	return KindPersonal
}

const DefaultRegion = "CN"

// NormalizeRegion upper-cases a region and applies the default when empty.
func NormalizeRegion(region string) (string, error) {
	r := strings.ToUpper(strings.TrimSpace(region))
	if r == "" {
		return DefaultRegion, nil
	}
	if len(r) != 2 || r[0] < 'A' || r[0] > 'Z' || r[1] < 'A' || r[1] > 'Z' {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, region)
	}
	return r, nil
}

// Format renders an ID from its parts. number is reduced modulo 10000.
func Format(kind Kind, region string, number int) ID {
	return ID(fmt.Sprintf("AX-%s-%s-%04d", kind.Prefix(), region, number%10000))
}

var idPattern = regexp.MustCompile(`^AX-([US])-([A-Z]{2})-(\d{4})$`)

// Parsed is the decomposed form of an ID.
type Parsed struct {
	Kind   Kind   `json:"type"`
	Region string `json:"region"`
	Number int    `json:"number"`
}

func Parse(id ID) (Parsed, error) {
	m := idPattern.FindStringSubmatch(string(id))
	if m == nil {
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	n, _ := strconv.Atoi(m[3])
	return Parsed{Kind: kindFromPrefix(m[1]), Region: m[2], Number: n}, nil
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Agent struct {
	ID        ID        `json:"ax_id"`
	Kind      Kind      `json:"type"`
	Nickname  string    `json:"nickname"`
	Platform  string    `json:"platform"`
	Region    string    `json:"region"`
	Bio       string    `json:"bio,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(id ID, kind Kind, nickname, platform, region, bio string) Agent {
	now := time.Now().UTC()
	if platform == "" {
		platform = "generic"
	}
	return Agent{
		ID:        id,
		Kind:      kind,
		Nickname:  nickname,
		Platform:  platform,
		Region:    region,
		Bio:       bio,
		Status:    StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayName falls back to the ID when no nickname was registered.
func (a Agent) DisplayName() string {
	if a.Nickname != "" {
		return a.Nickname
	}
	return string(a.ID)
}

type ListFilters struct {
	Kind     *Kind
	Status   *Status
	Platform string
	Limit    int
}
