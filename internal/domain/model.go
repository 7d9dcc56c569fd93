package domain

import "time"

const (
	RoleAdmin     = "admin"
	RoleMonitor   = "monitor"
	RoleVolunteer = "volunteer"
)

const (
	UsersCollectionID     = "_pb_users_auth_"
	UsersCollectionName   = "users"
	ExpensesCollection    = "expenses"
	DonationsCollection   = "donations"
	CollectionTypeBase    = "base"
	CollectionTypeAuth    = "auth"
	RecordIDLength        = 15
	FieldRecordedBy       = "recorded_by"
	FieldApprovedBy       = "approved_by"
	FieldStatus           = "status"
	StatusPending         = "Pending"
	StatusApproved        = "Approved"
	StatusRejected        = "Rejected"
	defaultPrincipalLabel = "unknown"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldRelation FieldType = "relation"
	FieldEmail    FieldType = "email"
	FieldPassword FieldType = "password"
	FieldBool     FieldType = "bool"
	FieldAutodate FieldType = "autodate"
)

// Field is one typed attribute of a collection. ID is stable across renames.
type Field struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Hidden      bool      `json:"hidden"`
	Presentable bool      `json:"presentable"`
	System      bool      `json:"system"`
	PrimaryKey  bool      `json:"primaryKey,omitempty"`

	Min                 *float64 `json:"min,omitempty"`
	Max                 *float64 `json:"max,omitempty"`
	Pattern             string   `json:"pattern,omitempty"`
	AutogeneratePattern string   `json:"autogeneratePattern,omitempty"`
	OnlyInt             bool     `json:"onlyInt,omitempty"`

	Values    []string `json:"values,omitempty"`
	MaxSelect int      `json:"maxSelect,omitempty"`
	MinSelect int      `json:"minSelect,omitempty"`

	CollectionID  string `json:"collectionId,omitempty"`
	CascadeDelete bool   `json:"cascadeDelete,omitempty"`

	OnCreate bool `json:"onCreate,omitempty"`
	OnUpdate bool `json:"onUpdate,omitempty"`
}

// Rules holds the access predicates of a collection. A nil rule is locked to
// superusers, an empty rule is public, anything else is evaluated by the
// backend that serves the collection.
type Rules struct {
	ListRule   *string `json:"listRule"`
	ViewRule   *string `json:"viewRule"`
	CreateRule *string `json:"createRule"`
	UpdateRule *string `json:"updateRule"`
	DeleteRule *string `json:"deleteRule"`
}

type Collection struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	System  bool     `json:"system"`
	Fields  []Field  `json:"fields"`
	Indexes []string `json:"indexes"`
	Rules
}

func (c Collection) FieldByName(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (c Collection) FieldIndex(id string) int {
	for i, f := range c.Fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}

type Record struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collectionId"`
	Collection   string         `json:"collectionName"`
	Data         map[string]any `json:"data"`
	Created      time.Time      `json:"created"`
	Updated      time.Time      `json:"updated"`
}

func (r Record) String(key string) string {
	v, _ := r.Data[key].(string)
	return v
}

type RecordQuery struct {
	CollectionID string
	FieldEquals  map[string]string
	Limit        int
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// Principal is the authenticated model carried by a session.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

func (p *Principal) Label() string {
	if p == nil {
		return defaultPrincipalLabel
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

func PrincipalFromUser(u User) *Principal {
	return &Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

type AuditLog struct {
	ID          uint      `json:"id"`
	ActorUserID string    `json:"actor_user_id"`
	Action      string    `json:"action"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
}

type AppliedMigration struct {
	File    string    `json:"file"`
	Applied time.Time `json:"applied"`
}

type MigrationStatus struct {
	Name    string     `json:"name"`
	Applied bool       `json:"applied"`
	At      *time.Time `json:"applied_at,omitempty"`
}

type VersionInfo struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	UpdateAvailable bool   `json:"updateAvailable"`
	Timestamp       string `json:"timestamp,omitempty"`
	Error           string `json:"error,omitempty"`
}
