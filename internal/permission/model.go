package permission

import (
	"strings"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// Grant is one stored permission record. An empty TableKey applies to every
// table the actor has no table-specific grant for.
type Grant struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Actor             string    `gorm:"not null;uniqueIndex:idx_grant_actor_table" json:"actor"`
	TableKey          string    `gorm:"not null;default:'';uniqueIndex:idx_grant_actor_table" json:"table"`
	CanImport         bool      `json:"canImport"`
	CanValidate       bool      `json:"canValidate"`
	CanPreview        bool      `json:"canPreview"`
	CanApprove        bool      `json:"canApprove"`
	MaxFileSize       int64     `json:"maxFileSize"`
	MaxRows           int       `json:"maxRows"`
	AllowedFormats    string    `json:"allowedFormats"`
	AllowedTables     string    `json:"allowedTables"`
	RequireApproval   bool      `json:"requireApproval"`
	MaxImportsPerHour int       `json:"maxImportsPerHour"`
	MaxImportsPerDay  int       `json:"maxImportsPerDay"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Grant) TableName() string {
	return "import_permissions"
}

// Permission converts the record to the policy the controller enforces.
// Unknown format names are dropped.
func (g Grant) Permission() core.Permission {
	p := core.Permission{
		CanImport:         g.CanImport,
		CanValidate:       g.CanValidate,
		CanPreview:        g.CanPreview,
		CanApprove:        g.CanApprove,
		MaxFileSize:       g.MaxFileSize,
		MaxRows:           g.MaxRows,
		AllowedTables:     splitList(g.AllowedTables),
		RequireApproval:   g.RequireApproval,
		MaxImportsPerHour: g.MaxImportsPerHour,
		MaxImportsPerDay:  g.MaxImportsPerDay,
	}
	for _, name := range splitList(g.AllowedFormats) {
		if f, ok := core.ParseFormat(name); ok {
			p.AllowedFormats = append(p.AllowedFormats, f)
		}
	}
	return p
}

// GrantFor builds a record for actor and table from p.
func GrantFor(actor, table string, p core.Permission) Grant {
	formats := make([]string, len(p.AllowedFormats))
	for i, f := range p.AllowedFormats {
		formats[i] = string(f)
	}
	return Grant{
		Actor:             actor,
		TableKey:          table,
		CanImport:         p.CanImport,
		CanValidate:       p.CanValidate,
		CanPreview:        p.CanPreview,
		CanApprove:        p.CanApprove,
		MaxFileSize:       p.MaxFileSize,
		MaxRows:           p.MaxRows,
		AllowedFormats:    strings.Join(formats, ","),
		AllowedTables:     strings.Join(p.AllowedTables, ","),
		RequireApproval:   p.RequireApproval,
		MaxImportsPerHour: p.MaxImportsPerHour,
		MaxImportsPerDay:  p.MaxImportsPerDay,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
