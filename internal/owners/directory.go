package owners

import (
	"strings"

	"content_review/internal/model"
)

// BreadcrumbSeparator joins group names in a breadcrumb label.
const BreadcrumbSeparator = " > "

// Directory is a read-only snapshot of groups and members.
type Directory struct {
	members map[int64]model.Member
	groups  map[int64]model.Group
}

// NewDirectory indexes members and groups by ID.
func NewDirectory(members []model.Member, groups []model.Group) *Directory {
	d := &Directory{
		members: make(map[int64]model.Member, len(members)),
		groups:  make(map[int64]model.Group, len(groups)),
	}
	for _, m := range members {
		d.members[m.ID] = m
	}
	for _, g := range groups {
		d.groups[g.ID] = g
	}
	return d
}

// Member looks up a member by ID.
func (d *Directory) Member(id int64) (model.Member, bool) {
	m, ok := d.members[id]
	return m, ok
}

// Group looks up a group by ID.
func (d *Directory) Group(id int64) (model.Group, bool) {
	g, ok := d.groups[id]
	return g, ok
}

// Breadcrumbs returns the root-to-group path of names joined by sep, e.g.
// "Editors > Marketing". Unknown groups yield "". A cycle in the parent
// links stops the walk at the first repeated group.
func (d *Directory) Breadcrumbs(groupID int64, sep string) string {
	var names []string
	seen := make(map[int64]bool)

	id := groupID
	for {
		g, ok := d.groups[id]
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		names = append(names, g.Name)
		if g.ParentGroupID == nil {
			break
		}
		id = *g.ParentGroupID
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, sep)
}

// OwnerNames labels the owners a source declares: group breadcrumbs first,
// then member names, joined by ", ". Unknown IDs are left out.
func (d *Directory) OwnerNames(src model.OwnerSource) string {
	names := make([]string, 0, len(src.OwnerGroupIDs)+len(src.OwnerUserIDs))
	for _, id := range src.OwnerGroupIDs {
		if label := d.Breadcrumbs(id, BreadcrumbSeparator); label != "" {
			names = append(names, label)
		}
	}
	for _, id := range src.OwnerUserIDs {
		if m, ok := d.members[id]; ok {
			names = append(names, m.Name())
		}
	}
	return strings.Join(names, ", ")
}
