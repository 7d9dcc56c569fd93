// Package ui holds the templ components served by the web adapter.
// Interactive parts post datastar signals and are patched back by element
// id. Run `templ generate` after editing a .templ file.
package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

const newUserSignals = `{"newUserEmail":"","newUserName":"","newUserPassword":"","newUserRole":"volunteer"}`

var userRoles = []string{domain.RoleVolunteer, domain.RoleMonitor, domain.RoleAdmin}

// Nav is what the layout needs to know about the viewer.
type Nav struct {
	User      *domain.Principal
	Dashboard bool
	Users     bool
	Audit     bool
	Schema    bool
	Volunteer bool
	Active    string
}

func (n Nav) at(path string) Nav {
	n.Active = path
	return n
}

type navLink struct {
	Path  string
	Label string
}

func navLinks(nav Nav) []navLink {
	var links []navLink
	if nav.Dashboard {
		links = append(links,
			navLink{"/dashboard", "Dashboard"},
			navLink{"/collections/" + domain.ExpensesCollection, "Expenses"},
			navLink{"/collections/" + domain.DonationsCollection, "Donations"},
		)
	}
	if nav.Volunteer {
		links = append(links, navLink{"/volunteer", "My records"})
	}
	if nav.Users {
		links = append(links, navLink{"/admin/users", "Users"})
	}
	if nav.Audit {
		links = append(links, navLink{"/admin/audit", "Audit"})
	}
	if nav.Schema {
		links = append(links, navLink{"/admin/schema", "Schema"})
	}
	return links
}

// cardHref points a dashboard card at the collection page, or at the
// matching table on the volunteer page for viewers without collection
// pages.
func cardHref(nav Nav, collection string) string {
	if nav.Dashboard {
		return "/collections/" + collection
	}
	return "/volunteer#records-" + collection
}

// CollectionView is one collection with the records the viewer may see.
type CollectionView struct {
	Collection domain.Collection
	Records    []domain.Record
	CanCreate  bool
	CanReview  bool
	CanDelete  bool
}

func (v CollectionView) hasActions() bool {
	return v.CanReview || v.CanDelete
}

// reviewStatuses are the review buttons shown per row.
func (v CollectionView) reviewStatuses() []string {
	if !v.CanReview {
		return nil
	}
	if _, ok := v.Collection.FieldByName(domain.FieldStatus); !ok {
		return nil
	}
	return []string{domain.StatusApproved, domain.StatusRejected}
}

func postAction(v CollectionView, rec domain.Record, suffix string) string {
	return fmt.Sprintf("@post('/commands/collections/%s/records/%s%s')", v.Collection.Name, rec.ID, suffix)
}

func createAction(c domain.Collection) string {
	return fmt.Sprintf("@post('/commands/collections/%s/records')", c.Name)
}

// FormatValue renders one record value for a table cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}

// visibleFields are the fields shown as table columns.
func visibleFields(c domain.Collection) []domain.Field {
	out := make([]domain.Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.System || f.Hidden || f.Type == domain.FieldPassword || f.Type == domain.FieldAutodate {
			continue
		}
		out = append(out, f)
	}
	return out
}

// formFields are the fields a create form asks for. Stamped and reviewed
// fields are filled in by the server.
func formFields(c domain.Collection) []domain.Field {
	out := make([]domain.Field, 0, len(c.Fields))
	for _, f := range visibleFields(c) {
		switch f.Name {
		case domain.FieldRecordedBy, domain.FieldApprovedBy, domain.FieldStatus:
			continue
		}
		if f.Type == domain.FieldRelation {
			continue
		}
		out = append(out, f)
	}
	return out
}

func formSignals(c domain.Collection) string {
	values := make(map[string]any)
	for _, f := range formFields(c) {
		if f.Type == domain.FieldBool {
			values[f.Name] = false
			continue
		}
		values[f.Name] = ""
	}
	raw, _ := json.Marshal(map[string]any{c.Name: values})
	return string(raw)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
